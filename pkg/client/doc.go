// Package client is the OCR pipeline Go SDK.
//
// It wraps the document backend's REST API: listing and uploading PDFs,
// downloading the raw OCR output as Label Studio tasks, importing documents
// into a Label Studio project, submitting corrected annotations and pushing
// the result into RAGFlow. Every call issues exactly one request and hands
// the response back untouched.
//
// # Choosing the base URL
//
// The base URL comes from the endpoint package. With OCR_API_BASE_URL unset
// it is the same-origin path "/api", which needs an origin to anchor it:
//
//	c, err := client.New(endpoint.FromEnv(),
//	    client.WithOrigin("http://localhost:8082"), // devproxy
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Set OCR_API_BASE_URL=http://backend:8010/api to talk to the backend
// directly; the origin is then ignored.
//
// # Uploading and listing
//
//	f, _ := os.Open("scan.pdf")
//	defer f.Close()
//	resp, err := c.UploadDocument(ctx, "scan.pdf", f)
//
//	resp, err = c.ListDocuments(ctx)
//	var docs []client.Document
//	err = resp.Decode(&docs)
//
// Response.Body always holds the raw bytes the server sent; Decode is a
// convenience for callers that want typed values.
//
// # Labeling round trip
//
//	tasks, _ := c.GetLabelStudioTasks(ctx, "42")
//	_, _ = c.AutoImportToLabelStudio(ctx, []string{"42", "43"}, 7)
//	// ... annotate in Label Studio, export JSON ...
//	_, _ = c.SubmitCorrection(ctx, "42", "export.json", exportFile)
//	_, _ = c.IngestToRAGFlow(ctx, "42", corrected)
//
// # Errors
//
// Non-2xx responses come back as *APIError carrying the status and raw
// body. Transport failures are wrapped, so errors.Is(err,
// context.DeadlineExceeded) works as expected. Nothing is retried.
//
// # Concurrency
//
// Calls block until the response is read. A Client is immutable after New
// and may be shared across goroutines; there is no ordering guarantee
// between concurrent calls.
package client

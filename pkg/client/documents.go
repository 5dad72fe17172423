package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// FileField is the multipart field name the backend reads uploads from.
const FileField = "file"

// Document lifecycle states reported by the backend.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
	StatusCorrected  = "corrected"
	StatusIngested   = "ingested"
)

// Document is one OCR processing workflow as serialized by the backend.
type Document struct {
	ID                       json.Number     `json:"id"`
	OriginalPDFPath          string          `json:"original_pdf_path"`
	MinerUJSONPath           *string         `json:"mineru_json_path"`
	Status                   string          `json:"status"`
	CreatedAt                time.Time       `json:"created_at"`
	RawOCRJSON               json.RawMessage `json:"raw_ocr_json,omitempty"`
	CorrectedLabelStudioJSON json.RawMessage `json:"corrected_label_studio_json,omitempty"`
}

// ImportRequest is the body of AutoImportToLabelStudio.
type ImportRequest struct {
	DocIDs    []string `json:"doc_ids"`
	ProjectID int      `json:"project_id"`
}

// RAGFlowChunk is one page of corrected text.
type RAGFlowChunk struct {
	Content string `json:"content_ltxt"`
}

// RAGFlowPayload is the add_chunk payload produced from corrected data.
type RAGFlowPayload struct {
	DocID  string         `json:"doc_id"`
	KBName string         `json:"kb_name"`
	Chunks []RAGFlowChunk `json:"chunks"`
}

// documentPath returns /documents/{id}/{suffix} with id path-escaped.
func documentPath(id, suffix string) string {
	p := "/documents/" + url.PathEscape(id) + "/"
	if suffix != "" {
		p += suffix + "/"
	}
	return p
}

// ListDocuments fetches GET /documents/.
func (c *Client) ListDocuments(ctx context.Context) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/", nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// GetDocument fetches GET /documents/{id}/.
func (c *Client) GetDocument(ctx context.Context, id string) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, documentPath(id, ""), nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// DeleteDocument issues DELETE /documents/{id}/. The backend answers 204
// with an empty body.
func (c *Client) DeleteDocument(ctx context.Context, id string) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, documentPath(id, ""), nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// UploadDocument posts file to /documents/upload/ as a multipart form with
// a single part under FileField. name is the filename reported to the
// server.
func (c *Client) UploadDocument(ctx context.Context, name string, file io.Reader) (*Response, error) {
	return c.postFile(ctx, "/documents/upload/", name, file)
}

// GetLabelStudioTasks fetches GET /documents/{id}/to-label-studio/.
func (c *Client) GetLabelStudioTasks(ctx context.Context, id string) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, documentPath(id, "to-label-studio"), nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// AutoImportToLabelStudio posts {"doc_ids": [...], "project_id": N} to
// /documents/auto-import-to-label-studio/.
func (c *Client) AutoImportToLabelStudio(ctx context.Context, docIDs []string, projectID int) (*Response, error) {
	body := ImportRequest{DocIDs: docIDs, ProjectID: projectID}
	if body.DocIDs == nil {
		body.DocIDs = []string{}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/documents/auto-import-to-label-studio/", body)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// IngestToRAGFlow posts payload to /documents/{id}/ingest-to-ragflow/.
// A json.RawMessage or []byte payload is sent byte for byte; anything else
// is JSON-encoded as is.
func (c *Client) IngestToRAGFlow(ctx context.Context, id string, payload any) (*Response, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, documentPath(id, "ingest-to-ragflow"), payload)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// SubmitCorrection uploads a corrected Label Studio export to
// /documents/{id}/submit-correction/ under FileField.
func (c *Client) SubmitCorrection(ctx context.Context, id, name string, file io.Reader) (*Response, error) {
	return c.postFile(ctx, documentPath(id, "submit-correction"), name, file)
}

// GetRAGFlowPayload fetches GET /documents/{id}/to-ragflow/.
func (c *Client) GetRAGFlowPayload(ctx context.Context, id string) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, documentPath(id, "to-ragflow"), nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// postFile sends file as the only part of a multipart form.
func (c *Client) postFile(ctx context.Context, path, name string, file io.Reader) (*Response, error) {
	if file == nil {
		return nil, ErrNilFile
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(FileField, name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/u13596216391/OCR-v1/pkg/client"
	"golang.org/x/sync/errgroup"
)

// maxParallelFetches bounds concurrent task exports.
const maxParallelFetches = 4

// ── documents ────────────────────────────────────────────────────────────────

func newDocumentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List, inspect and delete documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runListDocuments(cmd)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all documents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runListDocuments(cmd)
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a single document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.newClient()
				if err != nil {
					return err
				}
				ctx, cancel := a.commandContext(cmd)
				defer cancel()

				resp, err := c.GetDocument(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get document %s: %w", args[0], err)
				}
				if a.format == "text" && a.output == "" {
					var doc client.Document
					if err := resp.Decode(&doc); err != nil {
						return err
					}
					a.printDocument(doc)
					return nil
				}
				return a.writeResponse(resp)
			},
		},
		newDeleteCmd(a),
	)
	return cmd
}

func (a *app) runListDocuments(cmd *cobra.Command) error {
	c, err := a.newClient()
	if err != nil {
		return err
	}
	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	resp, err := c.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if a.format == "text" && a.output == "" {
		var docs []client.Document
		if err := resp.Decode(&docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(a.out, "No documents.")
			return nil
		}
		return a.printDocuments(docs)
	}
	return a.writeResponse(resp)
}

func newDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !force {
				fmt.Fprintf(a.out, "Delete document %s? This cannot be undone. [y/N]: ", id)
				answer, _ := bufio.NewReader(a.in).ReadString('\n')
				if strings.ToLower(strings.TrimSpace(answer)) != "y" {
					fmt.Fprintln(a.out, "Aborted.")
					return nil
				}
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			if _, err := c.DeleteDocument(ctx, id); err != nil {
				return fmt.Errorf("delete document %s: %w", id, err)
			}
			fmt.Fprintf(a.out, "✓ Document deleted: %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	return cmd
}

// ── upload ───────────────────────────────────────────────────────────────────

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF for OCR processing",
		Long: `Upload sends the file as the multipart field "file" to
POST <base>/documents/upload/ and prints the server's response.

  ocr upload ./invoices/2024-03.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := a.fs.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			resp, err := c.UploadDocument(ctx, filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("upload document: %w", err)
			}
			return a.writeResponse(resp)
		},
	}
}

// ── tasks ────────────────────────────────────────────────────────────────────

type taskResult struct {
	id   string
	resp *client.Response
}

func newTasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <id> [id] ...",
		Short: "Export documents as Label Studio tasks",
		Long: `Tasks fetches GET <base>/documents/{id}/to-label-studio/ for each id.

Several ids are fetched concurrently. With --output and more than one id the
flag names a directory and each export is written to <dir>/<id>.json, with separators in the id
percent-escaped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			results := make([]taskResult, len(args))
			var (
				mu   sync.Mutex
				merr *multierror.Error
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(maxParallelFetches)
			for i, id := range args {
				i, id := i, id
				g.Go(func() error {
					resp, err := c.GetLabelStudioTasks(gctx, id)
					if err != nil {
						mu.Lock()
						merr = multierror.Append(merr, fmt.Errorf("document %s: %w", id, err))
						mu.Unlock()
						return nil
					}
					results[i] = taskResult{id: id, resp: resp}
					return nil
				})
			}
			_ = g.Wait()

			for _, r := range results {
				if r.resp == nil {
					continue
				}
				if err := a.writeTask(r, len(args) > 1); err != nil {
					merr = multierror.Append(merr, err)
				}
			}
			if err := merr.ErrorOrNil(); err != nil {
				return fmt.Errorf("export tasks: %w", err)
			}
			return nil
		},
	}
}

func (a *app) writeTask(r taskResult, many bool) error {
	switch {
	case a.output != "" && many:
		return a.saveBody(filepath.Join(a.output, taskFileName(r.id)), r.resp.Body)
	case a.output != "":
		return a.saveBody(a.output, r.resp.Body)
	default:
		return a.printBody(r.resp.Body)
	}
}

// taskFileName maps a document id to a file name inside the --output
// directory. Path separators are escaped so every id stays a single entry
// in that directory.
func taskFileName(id string) string {
	return url.PathEscape(id) + ".json"
}

// ── import ───────────────────────────────────────────────────────────────────

func newImportCmd(a *app) *cobra.Command {
	var projectID int
	cmd := &cobra.Command{
		Use:   "import <id> [id] ... --project <n>",
		Short: "Import documents into a Label Studio project",
		Long: `Import asks the backend to push the documents' tasks into a Label
Studio project in a single request:

  ocr import 12 13 14 --project 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID <= 0 {
				return errors.New("--project is required and must be positive")
			}
			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			resp, err := c.AutoImportToLabelStudio(ctx, args, projectID)
			if err != nil {
				return fmt.Errorf("import to label studio: %w", err)
			}
			return a.writeResponse(resp)
		},
	}
	cmd.Flags().IntVar(&projectID, "project", 0, "Label Studio project ID")
	return cmd
}

// ── correct ──────────────────────────────────────────────────────────────────

func newCorrectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "correct <id> <export.json>",
		Short: "Submit a Label Studio export as a document's correction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, path := args[0], args[1]
			f, err := a.fs.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			resp, err := c.SubmitCorrection(ctx, id, filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("submit correction for %s: %w", id, err)
			}
			return a.writeResponse(resp)
		},
	}
}

// ── ingest ───────────────────────────────────────────────────────────────────

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <id> <payload.json>",
		Short: "Ingest a document into RAGFlow",
		Long: `Ingest posts the payload file verbatim to
POST <base>/documents/{id}/ingest-to-ragflow/.

A payload can be produced with "ocr ragflow <id> -o payload.json" and edited
before ingestion.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, path := args[0], args[1]
			data, err := afero.ReadFile(a.fs, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", path)
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			resp, err := c.IngestToRAGFlow(ctx, id, json.RawMessage(data))
			if err != nil {
				return fmt.Errorf("ingest %s to ragflow: %w", id, err)
			}
			return a.writeResponse(resp)
		},
	}
}

// ── ragflow ──────────────────────────────────────────────────────────────────

func newRAGFlowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ragflow <id>",
		Short: "Fetch the RAGFlow payload built from a document's correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			resp, err := c.GetRAGFlowPayload(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get ragflow payload for %s: %w", args[0], err)
			}
			if a.format == "text" && a.output == "" {
				var p client.RAGFlowPayload
				if err := resp.Decode(&p); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Document:  %s\n", p.DocID)
				fmt.Fprintf(a.out, "KB:        %s\n", p.KBName)
				fmt.Fprintf(a.out, "Chunks:    %d\n", len(p.Chunks))
				return nil
			}
			return a.writeResponse(resp)
		},
	}
}

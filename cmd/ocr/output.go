package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/u13596216391/OCR-v1/pkg/client"
	"gopkg.in/yaml.v3"
)

// writeResponse prints resp in the selected format, or saves the raw body
// to --output when set.
func (a *app) writeResponse(resp *client.Response) error {
	if a.output != "" {
		return a.saveBody(a.output, resp.Body)
	}
	return a.printBody(resp.Body)
}

func (a *app) printBody(body []byte) error {
	switch a.format {
	case "yaml":
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("decode response for yaml output: %w", err)
		}
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json", "text", "":
		// Raw pass-through keeps the server's bytes intact.
		if len(body) == 0 {
			return nil
		}
		if _, err := a.out.Write(body); err != nil {
			return err
		}
		if !bytes.HasSuffix(body, []byte("\n")) {
			fmt.Fprintln(a.out)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: use json, yaml or text", a.format)
	}
}

// saveBody writes body to path, creating parent directories.
func (a *app) saveBody(path string, body []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(a.fs, path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(a.out, "✓ Saved %d bytes to %s\n", len(body), path)
	return nil
}

// printDocuments renders a document list as a table.
func (a *app) printDocuments(docs []client.Document) error {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tFILE")
	for _, d := range docs {
		created := ""
		if !d.CreatedAt.IsZero() {
			created = d.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Status, created, filepath.Base(d.OriginalPDFPath))
	}
	return w.Flush()
}

// printDocument renders a single document as key/value lines.
func (a *app) printDocument(d client.Document) {
	fmt.Fprintf(a.out, "ID:        %s\n", d.ID)
	fmt.Fprintf(a.out, "Status:    %s\n", d.Status)
	fmt.Fprintf(a.out, "File:      %s\n", d.OriginalPDFPath)
	if d.MinerUJSONPath != nil {
		fmt.Fprintf(a.out, "MinerU:    %s\n", *d.MinerUJSONPath)
	}
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "Created:   %s\n", d.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(a.out, "Raw OCR:   %t\n", len(d.RawOCRJSON) > 0 && string(d.RawOCRJSON) != "null")
	fmt.Fprintf(a.out, "Corrected: %t\n", len(d.CorrectedLabelStudioJSON) > 0 && string(d.CorrectedLabelStudioJSON) != "null")
}

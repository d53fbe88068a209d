// Package export turns conversation content into downloadable PDF and
// DOCX artifacts under a contained output directory.
package export

import (
	"fmt"
	"os"

	"atelier/pkg/logger"
)

type Exporter struct {
	dir string
}

// NewExporter ensures the output directory exists and returns an exporter
// rooted there.
func NewExporter(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// Dir returns the export root, used by the download handler and retention.
func (e *Exporter) Dir() string { return e.dir }

func (e *Exporter) checkContent(content string) error {
	if len(content) > MaxContentBytes {
		return fmt.Errorf("content exceeds %d byte export limit", MaxContentBytes)
	}
	if content == "" {
		return fmt.Errorf("nothing to export")
	}
	return nil
}

// ExportPDF writes a PDF artifact and returns its filename.
func (e *Exporter) ExportPDF(title, content string) (string, error) {
	if err := e.checkContent(content); err != nil {
		return "", err
	}
	name := BuildFilename(title, "pdf")
	path, err := SafeJoin(e.dir, name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, RenderPDF(title, content), 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	logger.Info("pdf_exported", "file", name, "bytes", len(content))
	return name, nil
}

// ExportDOCX writes a DOCX artifact and returns its filename.
func (e *Exporter) ExportDOCX(title, content string) (string, error) {
	if err := e.checkContent(content); err != nil {
		return "", err
	}
	data, err := RenderDOCX(title, content)
	if err != nil {
		return "", fmt.Errorf("render docx: %w", err)
	}
	name := BuildFilename(title, "docx")
	path, err := SafeJoin(e.dir, name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write docx: %w", err)
	}
	logger.Info("docx_exported", "file", name, "bytes", len(content))
	return name, nil
}

// Resolve validates a client-supplied artifact name and returns its
// absolute path for serving.
func (e *Exporter) Resolve(name string) (string, error) {
	path, err := SafeJoin(e.dir, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

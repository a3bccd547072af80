// Package extract turns files on disk into documents. PDF and image handling
// shells out to poppler and tesseract.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"docrag/internal/document"
)

var (
	ErrExtraction  = errors.New("extraction failed")
	ErrUnsupported = errors.New("unsupported file type")
)

const (
	TypeText  = "text"
	TypePDF   = "pdf"
	TypeImage = "image"
)

type Options struct {
	UseOCR bool
}

type Extractor interface {
	Extract(ctx context.Context, path string, opts Options) ([]document.Document, error)
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func baseMetadata(path, typ string) document.Metadata {
	return document.Metadata{
		"source":    path,
		"file_name": filepath.Base(path),
		"type":      typ,
	}
}

// Registry dispatches on lower-cased file extension.
type Registry struct {
	byExt map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (r *Registry) ExtractFromFile(ctx context.Context, path string, useOCR bool) ([]document.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	docs, err := e.Extract(ctx, path, Options{UseOCR: useOCR})
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
	}
	return docs, nil
}

// ExtractFromDirectory walks dir recursively and extracts every supported
// file. Unsupported files are skipped.
func (r *Registry) ExtractFromDirectory(ctx context.Context, dir string) ([]document.Document, error) {
	var docs []document.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !r.Supports(path) {
			return nil
		}
		got, err := r.ExtractFromFile(ctx, path, false)
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "extracted file", "path", path, "documents", len(got))
		docs = append(docs, got...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: walk %s: %v", ErrExtraction, dir, err)
	}
	return docs, nil
}

package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docrag/internal/document"
)

const ocrEngine = "tesseract"

type ImageExtractor struct {
	Runner    CommandRunner
	Tesseract string
	Languages string
}

func (e *ImageExtractor) Extract(ctx context.Context, path string, _ Options) ([]document.Document, error) {
	text, err := ocrImage(ctx, e.Runner, e.Tesseract, e.Languages, path)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	meta := baseMetadata(path, TypeImage)
	meta["ocr_engine"] = ocrEngine
	return []document.Document{document.New(text, meta)}, nil
}

func ocrImage(ctx context.Context, runner CommandRunner, bin, langs, path string) (string, error) {
	if langs == "" {
		langs = "eng"
	}
	out, err := runner.Run(ctx, bin, path, "stdout", "-l", langs)
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// PDFExtractor emits one document per non-empty page. With OCR the pages
// are rendered to PNG first and read back through tesseract.
type PDFExtractor struct {
	Runner    CommandRunner
	PDFToText string
	PDFToPPM  string
	Tesseract string
	Languages string
}

func (e *PDFExtractor) Extract(ctx context.Context, path string, opts Options) ([]document.Document, error) {
	var (
		pages []string
		err   error
	)
	if opts.UseOCR {
		pages, err = e.ocrPages(ctx, path)
	} else {
		pages, err = e.textPages(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	var docs []document.Document
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		meta := baseMetadata(path, TypePDF)
		meta["page"] = i + 1
		if opts.UseOCR {
			meta["ocr_engine"] = ocrEngine
		}
		docs = append(docs, document.New(p, meta))
	}
	return docs, nil
}

func (e *PDFExtractor) textPages(ctx context.Context, path string) ([]string, error) {
	out, err := e.Runner.Run(ctx, e.PDFToText, "-layout", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	return strings.Split(string(out), "\f"), nil
}

func (e *PDFExtractor) ocrPages(ctx context.Context, path string) ([]string, error) {
	dir, err := os.MkdirTemp("", "docrag-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := e.Runner.Run(ctx, e.PDFToPPM, "-png", "-r", "300", path, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers so lexical order is page order.
	sort.Strings(images)

	pages := make([]string, 0, len(images))
	for _, img := range images {
		text, err := ocrImage(ctx, e.Runner, e.Tesseract, e.Languages, img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	return pages, nil
}

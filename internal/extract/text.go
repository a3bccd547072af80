package extract

import (
	"context"
	"os"
	"strings"

	"docrag/internal/document"
)

// TextExtractor reads plain text and markdown files as a single document.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, path string, _ Options) ([]document.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(b)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []document.Document{document.New(content, baseMetadata(path, TypeText))}, nil
}

// Package doctext turns stored claim documents into plain text for the
// classifier and extractor.
package doctext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PageBreak separates pages in provider output
const PageBreak = "\f"

// PlaceholderPrefix starts the text returned for formats with no extractor
const PlaceholderPrefix = "模拟文档内容来自: "

// Provider returns the text content of a stored document
type Provider interface {
	Text(ctx context.Context, path string) (string, error)
}

// FileProvider reads documents from the local filesystem.
// Plain text is passed through, PDF pages are extracted and joined with
// PageBreak, and any other format yields a placeholder naming the file.
type FileProvider struct{}

// NewFileProvider returns a filesystem provider
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

// Text implements Provider
func (p *FileProvider) Text(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	case ".pdf":
		return pdfText(path)
	default:
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		return Placeholder(path), nil
	}
}

// Placeholder returns the stand-in text for a document with no extractor
func Placeholder(path string) string {
	return PlaceholderPrefix + filepath.Base(path)
}

// StaticProvider serves fixed text by path, for tests and batch input
type StaticProvider map[string]string

// Text implements Provider
func (p StaticProvider) Text(_ context.Context, path string) (string, error) {
	text, ok := p[path]
	if !ok {
		return "", fmt.Errorf("no text for %s: %w", path, os.ErrNotExist)
	}
	return text, nil
}

// Package docparse extracts plain text from uploaded study material and
// fetched links.
package docparse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// ErrUnsupportedFormat is returned for files whose extension has no loader.
var ErrUnsupportedFormat = errors.New("docparse: unsupported document format")

// Parser turns documents into plain text.
type Parser struct {
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l.With("component", "docparse") }
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{logger: slog.Default().With("component", "docparse")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile extracts the text of the file at path, choosing a loader by
// extension.
func (p *Parser) ParseFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("docparse: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("docparse: stat %s: %w", filepath.Base(path), err)
	}

	text, err := p.parse(ctx, formatOf(filepath.Ext(path)), f, info.Size())
	if err != nil {
		return "", fmt.Errorf("docparse: %s: %w", filepath.Base(path), err)
	}
	p.logger.Debug("parsed document", slog.String("file", filepath.Base(path)), slog.Int("chars", len(text)))
	return text, nil
}

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatText
	formatMarkdown
	formatHTML
)

func formatOf(ext string) format {
	switch strings.ToLower(ext) {
	case ".pdf":
		return formatPDF
	case ".txt", ".text", ".csv":
		return formatText
	case ".md", ".markdown":
		return formatMarkdown
	case ".html", ".htm":
		return formatHTML
	}
	return formatUnknown
}

// formatOfContentType maps an HTTP Content-Type to a loader.
func formatOfContentType(ct string) format {
	mime := strings.TrimSpace(strings.ToLower(strings.Split(ct, ";")[0]))
	switch mime {
	case "application/pdf":
		return formatPDF
	case "text/html", "application/xhtml+xml":
		return formatHTML
	case "text/markdown", "text/x-markdown":
		return formatMarkdown
	case "text/plain", "text/csv":
		return formatText
	}
	return formatUnknown
}

func (p *Parser) parse(ctx context.Context, f format, r io.ReaderAt, size int64) (string, error) {
	var docs []schema.Document
	var err error
	switch f {
	case formatPDF:
		docs, err = documentloaders.NewPDF(r, size).Load(ctx)
	case formatText:
		docs, err = documentloaders.NewText(io.NewSectionReader(r, 0, size)).Load(ctx)
	case formatHTML:
		docs, err = documentloaders.NewHTML(io.NewSectionReader(r, 0, size)).Load(ctx)
	case formatMarkdown:
		data, readErr := io.ReadAll(io.NewSectionReader(r, 0, size))
		if readErr != nil {
			return "", readErr
		}
		return MarkdownBody(data), nil
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", err
	}
	return joinPages(docs), nil
}

func joinPages(docs []schema.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(d.PageContent)
	}
	return b.String()
}

// parseBytes runs the loader for f over an in-memory document.
func (p *Parser) parseBytes(ctx context.Context, f format, data []byte) (string, error) {
	return p.parse(ctx, f, bytes.NewReader(data), int64(len(data)))
}

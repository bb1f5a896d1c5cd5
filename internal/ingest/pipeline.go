// Package ingest turns a resource's content into chunks, embeds them, and
// commits them to the subject's vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/vectorindex"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultBatchSize    = 64
)

// Parser extracts text from a stored file.
type Parser interface {
	ParseFile(ctx context.Context, path string) (string, error)
}

// LinkFetcher downloads a URL and extracts its text.
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Index is the write side of the vector store.
type Index interface {
	Update(subjectID int64, fn func(ix *vectorindex.Index) error) error
	RemoveResource(subjectID, resourceID int64) (int, error)
}

// Pipeline ingests resources into their subject's index.
type Pipeline struct {
	parser   Parser
	embedder ai.Embedder
	index    Index
	links    LinkFetcher
	resolve  func(string) (string, error)

	chunkSize int
	overlap   int
	batchSize int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunking sets the chunk size and overlap, in characters.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		if overlap < 0 || overlap >= size {
			return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
		}
		p.chunkSize, p.overlap = size, overlap
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithLinkFetcher enables ingestion of Link resources. Without it a resource
// that only has a URL fails with apperr.ErrNoContent.
func WithLinkFetcher(f LinkFetcher) Option {
	return func(p *Pipeline) error {
		p.links = f
		return nil
	}
}

// WithFileResolver maps a resource's stored file path to a readable path.
func WithFileResolver(fn func(string) (string, error)) Option {
	return func(p *Pipeline) error {
		p.resolve = fn
		return nil
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = l.With("component", "ingest")
		return nil
	}
}

// New creates a Pipeline.
func New(parser Parser, embedder ai.Embedder, index Index, opts ...Option) (*Pipeline, error) {
	if parser == nil || embedder == nil || index == nil {
		return nil, errors.New("ingest: parser, embedder and index are required")
	}
	p := &Pipeline{
		parser:    parser,
		embedder:  embedder,
		index:     index,
		resolve:   func(s string) (string, error) { return s, nil },
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
	}
	return p, nil
}

// Ingest loads, chunks, and embeds r, then commits all chunks to the
// subject's index in one update that replaces any earlier chunks of the same
// resource. If any step fails the index is left as it was. The caller owns
// the resource's status.
func (p *Pipeline) Ingest(ctx context.Context, r *models.Resource) error {
	if err := p.ingest(ctx, r); err != nil {
		return fmt.Errorf("ingest: resource %d: %w", r.ID, err)
	}
	return nil
}

// Discard removes every chunk of r from its subject's index.
func (p *Pipeline) Discard(_ context.Context, r *models.Resource) error {
	n, err := p.index.RemoveResource(r.SubjectID, r.ID)
	if err != nil {
		return fmt.Errorf("ingest: discard resource %d: %w", r.ID, err)
	}
	p.logger.Debug("discarded chunks", slog.Int64("resource_id", r.ID), slog.Int("chunks", n))
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, r *models.Resource) error {
	text, err := p.content(ctx, r)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return apperr.ErrEmptyDocument
	}

	chunks, err := p.split(text)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return apperr.ErrEmptyDocument
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.Entry{
			Content: c,
			Metadata: map[string]any{
				vectorindex.MetaResourceID:  r.ID,
				vectorindex.MetaTitle:       r.Title,
				vectorindex.MetaType:        string(r.Type),
				vectorindex.MetaSubjectID:   r.SubjectID,
				vectorindex.MetaChunkIndex:  i,
				vectorindex.MetaTotalChunks: len(chunks),
			},
		}
	}

	// Stage every batch before touching the index.
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		vecs, err := p.embedder.EmbedTexts(ctx, chunks[start:end])
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		vectors = append(vectors, vecs...)
	}

	err = p.index.Update(r.SubjectID, func(ix *vectorindex.Index) error {
		ix.RemoveResource(r.ID)
		return ix.Add(entries, vectors)
	})
	if err != nil {
		return fmt.Errorf("commit index: %w", err)
	}

	p.logger.Info("resource ingested",
		slog.Int64("resource_id", r.ID),
		slog.Int64("subject_id", r.SubjectID),
		slog.Int("chunks", len(chunks)))
	return nil
}

// content returns the resource body: the stored file, then the notes, then
// the URL when link fetching is enabled.
func (p *Pipeline) content(ctx context.Context, r *models.Resource) (string, error) {
	switch {
	case r.FilePath != "":
		path, err := p.resolve(r.FilePath)
		if err != nil {
			return "", fmt.Errorf("resolve file: %w", err)
		}
		text, err := p.parser.ParseFile(ctx, path)
		if err != nil {
			return "", fmt.Errorf("parse file: %w", err)
		}
		return text, nil
	case r.Notes != "":
		return r.Notes, nil
	case r.URL != "" && p.links != nil:
		text, err := p.links.Fetch(ctx, r.URL)
		if err != nil {
			return "", fmt.Errorf("fetch link: %w", err)
		}
		return text, nil
	case r.URL != "":
		return "", fmt.Errorf("link ingestion is disabled: %w", apperr.ErrNoContent)
	}
	return "", apperr.ErrNoContent
}

func (p *Pipeline) split(text string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.chunkSize),
		textsplitter.WithChunkOverlap(p.overlap),
	)
	raw, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := raw[:0]
	for _, c := range raw {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// Package openai implements the ai interfaces on top of langchaingo's OpenAI
// client, covering both OpenAI-compatible endpoints and Azure OpenAI.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/learnmate/internal/ai"
)

// Provider implements ai.Provider with a shared langchaingo client.
type Provider struct {
	embedder *Embedder
	chat     *ChatModel
	logger   *slog.Logger
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider validates cfg and builds the embedding and chat clients.
func NewProvider(cfg ai.Config, logger *slog.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ai config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openai.New(clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.EmbeddingBatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(cfg.EmbeddingBatchSize))
	}
	emb, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	return &Provider{
		embedder: &Embedder{embedder: emb, logger: logger.With("component", "openai-embedder")},
		chat:     &ChatModel{client: client, logger: logger.With("component", "openai-chat")},
		logger:   logger.With("component", "openai-provider"),
	}, nil
}

func clientOptions(cfg ai.Config) []openai.Option {
	opts := []openai.Option{
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	token := cfg.APIKey
	if token == "" {
		// OpenAI-compatible local servers accept any token.
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Provider == ai.ProviderAzure {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion),
		)
	}
	return opts
}

// Embedder returns the embedding service.
func (p *Provider) Embedder() ai.Embedder { return p.embedder }

// ChatModel returns the chat completion service.
func (p *Provider) ChatModel() ai.ChatModel { return p.chat }

// Close releases resources held by the provider.
// The underlying HTTP clients need no explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider")
	return nil
}

// Embedder implements ai.Embedder.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// EmbedTexts generates embeddings for a batch of texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", slog.Int("count", len(texts)))
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// EmbedText generates the embedding of a query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// ChatModel implements ai.ChatModel.
type ChatModel struct {
	client llms.Model
	logger *slog.Logger
}

// Complete sends a system and user message and returns the first choice.
func (c *ChatModel) Complete(ctx context.Context, system, user string, opts ...ai.CallOption) (string, error) {
	o := ai.ApplyCallOptions(opts...)
	content := make([]llms.MessageContent, 0, 2)
	if system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, user))

	callOpts := []llms.CallOption{llms.WithTemperature(o.Temperature)}
	if o.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	}

	resp, err := c.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate content: model returned no choices")
	}
	c.logger.Debug("completion received", slog.Int("chars", len(resp.Choices[0].Content)))
	return resp.Choices[0].Content, nil
}

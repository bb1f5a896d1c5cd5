package ai

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Config holds the connection settings of the AI backend.
type Config struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "azure".
	Provider string `yaml:"provider"`
	// BaseURL overrides the API endpoint. Required for azure.
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	// ChatModel is the model (or azure deployment) used for extraction and answers.
	ChatModel string `yaml:"chat_model"`
	// EmbeddingModel is the model (or azure deployment) used for embeddings.
	EmbeddingModel string `yaml:"embedding_model"`
	// EmbeddingBatchSize caps the number of texts per embedding request.
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`
}

// DefaultConfig returns a Config pointing at the public OpenAI API.
func DefaultConfig() Config {
	return Config{
		Provider:           ProviderOpenAI,
		ChatModel:          "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingBatchSize: 64,
	}
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderAzure)),
		validation.Field(&c.BaseURL, is.URL,
			validation.When(c.Provider == ProviderAzure, validation.Required)),
		validation.Field(&c.APIVersion,
			validation.When(c.Provider == ProviderAzure, validation.Required)),
		validation.Field(&c.ChatModel, validation.Required),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.EmbeddingBatchSize, validation.Min(1)),
	)
}

package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_AzureRequiresEndpointAndVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderAzure
	assert.Error(t, cfg.Validate())

	cfg.BaseURL = "https://example.openai.azure.com"
	cfg.APIVersion = "2024-02-01"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_RejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "llamaparse"
	assert.Error(t, cfg.Validate())
}

func TestConfig_RejectsBadBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingBatchSize = -1
	assert.Error(t, cfg.Validate())
}

func TestApplyCallOptions(t *testing.T) {
	o := ApplyCallOptions(WithTemperature(0.3), WithJSONMode())
	assert.Equal(t, 0.3, o.Temperature)
	assert.True(t, o.JSONMode)

	zero := ApplyCallOptions()
	assert.Equal(t, 0.0, zero.Temperature)
	assert.False(t, zero.JSONMode)
}

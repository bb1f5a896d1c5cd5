package internal

import (
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/learnmate/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestConfig_LayoutChecks(t *testing.T) {
	tests := []struct {
		name    string
		uploads string
		vectors string
		sqlite  string
		wantErr string
	}{
		{"defaults", "./data/uploads", "./data/vectorstores", "./data/learnmate.db", ""},
		{"same dir", "./data/files", "./data/files/", "./learnmate.db", "neither inside the other"},
		{"vectors inside uploads", "./data", "./data/vectorstores", "./learnmate.db", "neither inside the other"},
		{"uploads inside vectors", "./data/vectors/uploads", "./data/vectors", "./learnmate.db", "neither inside the other"},
		{"db inside uploads", "./data", "./vectors", "./data/learnmate.db", "inside the uploads directory"},
		{"db uri inside uploads", "./data", "./vectors", "file:data/learnmate.db?cache=shared", "inside the uploads directory"},
		{"db inside vectors", "./uploads", "./data", "./data/learnmate.db", "inside the vector_store directory"},
		{"sibling prefix", "./data/up", "./data/uploads", "./data/learnmate.db", ""},
		{"memory db", "./uploads", "./vectors", ":memory:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Uploads.Path = tt.uploads
			cfg.VectorStore.Path = tt.vectors
			cfg.SQLite.Path = tt.sqlite
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SectionErrorsArePrefixed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		prefix string
	}{
		{"port", func(c *Config) { c.App.HTTP.Port = 0 }, "app:"},
		{"sqlite", func(c *Config) { c.SQLite.Path = "" }, "sqlite:"},
		{"uploads", func(c *Config) { c.Uploads.Path = "" }, "uploads:"},
		{"overlap", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize }, "ingestion:"},
		{"interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler:"},
		{"workers", func(c *Config) { c.Exam.Workers = 0 }, "exam:"},
		{"top_k", func(c *Config) { c.Suggest.TopK = 0 }, "suggest:"},
		{"azure", func(c *Config) { c.AI.Provider = "azure" }, "ai:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("error %q does not start with %q", err, tt.prefix)
			}
		})
	}
}

func TestSchedulerConfig_DisabledIgnoresInterval(t *testing.T) {
	cfg := SchedulerConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled scheduler should pass: %v", err)
	}
}

func TestConfig_DecodeYAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	data := []byte(`
app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: /tmp/lm.db
uploads:
  path: /tmp/uploads
vector_store:
  path: /tmp/vectors
ingestion:
  chunk_size: 500
  chunk_overlap: 50
  batch_size: 16
  fetch_links: true
scheduler:
  enabled: true
  interval: 30s
exam:
  workers: 2
suggest:
  top_k: 8
ai:
  provider: openai
  api_key: ${TEST_OPENAI_KEY}
  chat_model: gpt-4o
  embedding_model: text-embedding-3-large
auth:
  mode: token
  token: secret
`)
	cfg := NewDefaultConfig()
	if err := pkgconfig.Decode(data, cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Scheduler.Interval)
	}
	if !cfg.Ingestion.FetchLinks || cfg.Ingestion.ChunkSize != 500 {
		t.Errorf("ingestion = %+v", cfg.Ingestion)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("api key = %q, want expanded env value", cfg.AI.APIKey)
	}
	if cfg.AI.EmbeddingBatchSize != 64 {
		t.Errorf("unset embedding_batch_size should keep default, got %d", cfg.AI.EmbeddingBatchSize)
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("auth should be enabled")
	}
}

func TestConfig_ShippedFileIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load("../config/config.yaml", cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Uploads.Path == cfg.VectorStore.Path {
		t.Error("uploads and vector store share a directory")
	}
}

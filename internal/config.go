package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/learnmate/internal/ai"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Uploads     PathConfig        `yaml:"uploads"`
	VectorStore PathConfig        `yaml:"vector_store"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Exam        ExamConfig        `yaml:"exam"`
	Suggest     SuggestConfig     `yaml:"suggest"`
	AI          ai.Config         `yaml:"ai"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"uploads", &c.Uploads},
		{"vector_store", &c.VectorStore},
		{"ingestion", &c.Ingestion},
		{"scheduler", &c.Scheduler},
		{"exam", &c.Exam},
		{"suggest", &c.Suggest},
		{"ai", &c.AI},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return c.checkLayout()
}

// checkLayout rejects directory layouts where cleaning up uploads could
// reach the vector indexes or the database.
func (c *Config) checkLayout() error {
	uploads, err := filepath.Abs(c.Uploads.Path)
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}
	vectors, err := filepath.Abs(c.VectorStore.Path)
	if err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if within(uploads, vectors) || within(vectors, uploads) {
		return fmt.Errorf("uploads and vector_store must be separate directories, neither inside the other")
	}
	if db, ok := sqliteFile(c.SQLite.Path); ok {
		abs, err := filepath.Abs(db)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		if within(uploads, abs) {
			return fmt.Errorf("sqlite.path must not be inside the uploads directory")
		}
		if within(vectors, abs) {
			return fmt.Errorf("sqlite.path must not be inside the vector_store directory")
		}
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// sqliteFile extracts the file name from a SQLite path or file: URI.
func sqliteFile(dsn string) (string, bool) {
	name := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == ":memory:" {
		return "", false
	}
	return name, true
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// PathConfig holds a directory path.
type PathConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the path configuration.
func (c *PathConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IngestionConfig controls how resources are chunked and embedded.
type IngestionConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap int  `yaml:"chunk_overlap"`
	BatchSize    int  `yaml:"batch_size"`
	FetchLinks   bool `yaml:"fetch_links"`
}

// Validate validates the ingestion configuration.
func (c *IngestionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ChunkOverlap, validation.Min(0), validation.Max(c.ChunkSize-1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
	)
}

// SchedulerConfig controls the background sweep of pending resources.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.When(c.Enabled, validation.Required, validation.Min(time.Second))),
	)
}

// ExamConfig controls exam extraction.
type ExamConfig struct {
	Workers int `yaml:"workers"`
}

// Validate validates the exam configuration.
func (c *ExamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// SuggestConfig controls answer suggestion.
type SuggestConfig struct {
	TopK int `yaml:"top_k"`
}

// Validate validates the suggest configuration.
func (c *SuggestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopK, validation.Required, validation.Min(1), validation.Max(50)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./data/learnmate.db",
		},
		Uploads: PathConfig{
			Path: "./data/uploads",
		},
		VectorStore: PathConfig{
			Path: "./data/vectorstores",
		},
		Ingestion: IngestionConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    64,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
		Exam: ExamConfig{
			Workers: 4,
		},
		Suggest: SuggestConfig{
			TopK: 5,
		},
		AI: ai.DefaultConfig(),
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// Package studyservice coordinates the relational store, uploaded files and
// the subject vector indexes for subject, resource and exam operations.
package studyservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/exam"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/storage"
	"github.com/starford/learnmate/internal/store"
	"github.com/starford/learnmate/internal/vectorindex"
)

// SubjectInput holds the editable fields of a subject.
type SubjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks the input.
func (in SubjectInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Description, validation.Length(0, 2000)),
	)
}

// ResourceInput holds the fields of a new resource.
type ResourceInput struct {
	Title string              `json:"title"`
	Type  models.ResourceType `json:"type"`
	URL   string              `json:"url"`
	Notes string              `json:"notes"`
}

// Validate checks the input.
func (in ResourceInput) Validate() error {
	types := make([]any, len(models.ResourceTypes))
	for i, t := range models.ResourceTypes {
		types[i] = t
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&in.Type, validation.Required, validation.In(types...).Error("must be one of Book, Note, Link")),
		validation.Field(&in.URL, is.URL),
	)
}

// Upload is a file sent along with a new resource.
type Upload struct {
	Name string
	Body io.Reader
}

// Service implements subject, resource and exam operations.
type Service struct {
	db      *store.DB
	files   storage.Provider
	vectors *vectorindex.Store
	logger  *slog.Logger
	rng     *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "studyservice") }
}

// WithRand fixes the source used to sample practice exams.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// New creates a Service.
func New(db *store.DB, files storage.Provider, vectors *vectorindex.Store, opts ...Option) *Service {
	s := &Service{
		db:      db,
		files:   files,
		vectors: vectors,
		logger:  slog.Default().With("component", "studyservice"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
}

// CreateSubject stores a new subject.
func (s *Service) CreateSubject(ctx context.Context, in SubjectInput) (*models.Subject, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	return s.db.CreateSubject(ctx, in.Name, in.Description)
}

// ListSubjects returns every subject with its resources.
func (s *Service) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	return s.db.ListSubjects(ctx)
}

// GetSubject returns one subject with its resources.
func (s *Service) GetSubject(ctx context.Context, id int64) (*models.Subject, error) {
	return s.db.GetSubject(ctx, id)
}

// UpdateSubject replaces the name and description of a subject.
func (s *Service) UpdateSubject(ctx context.Context, id int64, in SubjectInput) (*models.Subject, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	return s.db.UpdateSubject(ctx, id, in.Name, in.Description)
}

// DeleteSubject removes the subject, its rows, its stored files and its
// index. File and index cleanup failures are logged; Reconcile removes the
// leftovers on the next start.
func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	resources, err := s.db.ListResources(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteSubject(ctx, id); err != nil {
		return err
	}
	for _, r := range resources {
		s.removeFile(r.FilePath)
	}
	if err := s.vectors.Drop(id); err != nil {
		s.logger.Warn("drop index failed", slog.Int64("subject_id", id), slog.String("error", err.Error()))
	}
	s.logger.Info("subject deleted", slog.Int64("subject_id", id), slog.Int("resources", len(resources)))
	return nil
}

// CreateResource stores a new pending resource. The upload is kept only for
// types that store files.
func (s *Service) CreateResource(ctx context.Context, subjectID int64, in ResourceInput, up *Upload) (*models.Resource, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	ok, err := s.db.SubjectExists(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("subject %d: %w", subjectID, apperr.ErrNotFound)
	}

	r := &models.Resource{
		Title:     in.Title,
		Type:      in.Type,
		URL:       in.URL,
		Notes:     in.Notes,
		SubjectID: subjectID,
	}
	if up != nil && in.Type.StoresFile() {
		name, err := s.files.Save(up.Name, up.Body)
		if err != nil {
			return nil, fmt.Errorf("save upload: %w", err)
		}
		r.FilePath = name
	}
	if err := s.db.CreateResource(ctx, r); err != nil {
		s.removeFile(r.FilePath)
		return nil, err
	}
	s.logger.Info("resource created",
		slog.Int64("resource_id", r.ID),
		slog.Int64("subject_id", subjectID),
		slog.String("type", string(r.Type)))
	return r, nil
}

// ListResources returns the resources of a subject.
func (s *Service) ListResources(ctx context.Context, subjectID int64) ([]models.Resource, error) {
	if err := s.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.db.ListResources(ctx, subjectID)
}

// GetResource returns one resource.
func (s *Service) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	return s.db.GetResource(ctx, id)
}

// OpenResourceFile opens the stored file of a resource.
func (s *Service) OpenResourceFile(ctx context.Context, id int64) (*models.Resource, io.ReadCloser, error) {
	r, err := s.db.GetResource(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if r.FilePath == "" {
		return nil, nil, fmt.Errorf("resource %d has no stored file: %w", id, apperr.ErrNotFound)
	}
	rc, err := s.files.Open(r.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("resource %d file: %w", id, apperr.ErrNotFound)
	}
	return r, rc, nil
}

// DeleteResource removes the row, its stored file and its indexed chunks.
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	r, err := s.db.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteResource(ctx, id); err != nil {
		return err
	}
	s.removeFile(r.FilePath)
	n, err := s.vectors.RemoveResource(r.SubjectID, r.ID)
	if err != nil {
		s.logger.Warn("remove indexed chunks failed",
			slog.Int64("resource_id", id), slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("removed indexed chunks", slog.Int64("resource_id", id), slog.Int("chunks", n))
	}
	return nil
}

// ResetResource moves a failed resource back to pending.
func (s *Service) ResetResource(ctx context.Context, id int64) (*models.Resource, error) {
	r, err := s.db.ResetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("resource reset", slog.Int64("resource_id", id))
	return r, nil
}

// ListExams returns the exams of a subject with their questions.
func (s *Service) ListExams(ctx context.Context, subjectID int64) ([]models.Exam, error) {
	if err := s.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.db.ListExams(ctx, subjectID)
}

// GetExam returns one exam.
func (s *Service) GetExam(ctx context.Context, id string) (*models.Exam, error) {
	return s.db.GetExam(ctx, id)
}

// DeleteExam removes an exam with its questions and answers.
func (s *Service) DeleteExam(ctx context.Context, id string) error {
	return s.db.DeleteExam(ctx, id)
}

// ListQuestions returns the questions of an exam.
func (s *Service) ListQuestions(ctx context.Context, examID string) ([]models.Question, error) {
	return s.db.ListQuestions(ctx, examID)
}

// ListAnswers returns the answers of a question.
func (s *Service) ListAnswers(ctx context.Context, questionID string) ([]models.Answer, error) {
	return s.db.ListAnswers(ctx, questionID)
}

// PracticeExam samples n questions from every exam of the subject. The
// result is not stored.
func (s *Service) PracticeExam(ctx context.Context, subjectID int64, n int) (*models.Exam, error) {
	if err := s.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	pool, err := s.db.SubjectQuestions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return exam.SamplePractice(subjectID, pool, n, s.rng)
}

func (s *Service) requireSubject(ctx context.Context, id int64) error {
	ok, err := s.db.SubjectExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("subject %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Service) removeFile(path string) {
	if path == "" {
		return
	}
	if err := s.files.Delete(path); err != nil {
		s.logger.Warn("delete stored file failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/learnmate/internal/exam"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/scheduler"
	"github.com/starford/learnmate/internal/studyservice"
	"github.com/starford/learnmate/internal/suggest"
)

// ExamExtractor turns uploaded exam files into stored exams.
type ExamExtractor interface {
	ExtractBatch(ctx context.Context, subjectID int64, date string, files []exam.BatchFile) exam.BatchResult
}

// AnswerSuggester answers questions with the help of the subject index.
type AnswerSuggester interface {
	CorrectAnswer(ctx context.Context, cmd suggest.Command) (string, error)
	SubjectTopics(ctx context.Context, name, description string) (string, error)
}

// Searcher runs similarity queries over a subject index.
type Searcher interface {
	Search(ctx context.Context, subjectID int64, query string, k int) ([]retrieval.Result, error)
}

// Sweeper processes pending resources on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (scheduler.Result, error)
}

// Config wires the router to the application services.
type Config struct {
	Study   *studyservice.Service
	Exams   ExamExtractor
	Answers AnswerSuggester
	Search  Searcher
	Sweeper Sweeper

	// OnExamCreated, if set, is called for every stored exam.
	OnExamCreated func(models.Exam)
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler

	AuthEnabled bool
	AuthToken   string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(cfg Config) chi.Router {
	h := NewHandler(cfg)

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(CORSMiddleware)
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.AuthToken))

	r.Route("/subjects", func(r chi.Router) {
		r.Post("/", h.CreateSubject)
		r.Get("/", h.ListSubjects)
		r.Post("/suggestions", h.SubjectSuggestions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSubject)
			r.Put("/", h.UpdateSubject)
			r.Delete("/", h.DeleteSubject)
			r.Post("/resources", h.CreateResource)
			r.Get("/resources", h.ListResources)
			r.Post("/exams", h.UploadExams)
			r.Get("/exams", h.ListExams)
			r.Get("/generate-exam", h.GenerateExam)
			r.Get("/search", h.Search)
		})
	})

	r.Delete("/resources/{id}", h.DeleteResource)
	r.Post("/resources/{id}/reset", h.ResetResource)
	r.Get("/resources/{id}/file", h.ResourceFile)

	r.Get("/exams/{id}", h.GetExam)
	r.Delete("/exams/{id}", h.DeleteExam)
	r.Get("/exams/{id}/questions", h.ListQuestions)
	r.Get("/questions/{id}/answers", h.ListAnswers)

	r.Post("/get-correct-answer", h.CorrectAnswer)
	r.Post("/process-resources/manual", h.ProcessResources)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/learnmate/internal/exam"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/studyservice"
	"github.com/starford/learnmate/internal/vectorindex"
)

const defaultPracticeQuestions = 10

// Handler holds API route handlers.
type Handler struct {
	study   *studyservice.Service
	exams   ExamExtractor
	answers AnswerSuggester
	search  Searcher
	sweeper Sweeper
	onExam  func(models.Exam)
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		study:   cfg.Study,
		exams:   cfg.Exams,
		answers: cfg.Answers,
		search:  cfg.Search,
		sweeper: cfg.Sweeper,
		onExam:  cfg.OnExamCreated,
		logger:  logger.With("component", "api"),
	}
}

// CreateSubject handles POST /subjects.
//
//	@Summary	Create a subject
//	@Tags		subjects
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SubjectRequest	true	"Subject to create"
//	@Success	201		{object}	Subject
//	@Failure	400		{object}	errResponse
//	@Router		/subjects [post]
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.study.CreateSubject(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "create subject", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// ListSubjects handles GET /subjects.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.study.ListSubjects(r.Context())
	if err != nil {
		writeError(w, h.logger, "list subjects", err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

// GetSubject handles GET /subjects/{id}.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	s, err := h.study.GetSubject(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get subject", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSubject handles PUT /subjects/{id}.
func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req SubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.study.UpdateSubject(r.Context(), id, req)
	if err != nil {
		writeError(w, h.logger, "update subject", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSubject handles DELETE /subjects/{id}. Resources, stored files, the
// subject index and all exams go with it.
func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.study.DeleteSubject(r.Context(), id); err != nil {
		writeError(w, h.logger, "delete subject", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubjectSuggestions handles POST /subjects/suggestions.
func (h *Handler) SubjectSuggestions(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.answers.SubjectTopics(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, "subject suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: out})
}

// CreateResource handles POST /subjects/{id}/resources
// (multipart/form-data: title, type, url?, notes?, file?).
//
//	@Summary	Attach a resource to a subject
//	@Tags		resources
//	@Accept		multipart/form-data
//	@Produce	json
//	@Success	201	{object}	Resource
//	@Failure	400	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Router		/subjects/{id}/resources [post]
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	in := studyservice.ResourceInput{
		Title: r.FormValue("title"),
		Type:  models.ResourceType(r.FormValue("type")),
		URL:   r.FormValue("url"),
		Notes: r.FormValue("notes"),
	}

	var up *studyservice.Upload
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		up = &studyservice.Upload{Name: header.Filename, Body: file}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'file' field"))
		return
	}

	res, err := h.study.CreateResource(r.Context(), id, in, up)
	if err != nil {
		writeError(w, h.logger, "create resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListResources handles GET /subjects/{id}/resources.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	list, err := h.study.ListResources(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "list resources", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// DeleteResource handles DELETE /resources/{id}.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.study.DeleteResource(r.Context(), id); err != nil {
		writeError(w, h.logger, "delete resource", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetResource handles POST /resources/{id}/reset.
func (h *Handler) ResetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	res, err := h.study.ResetResource(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "reset resource", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadExams handles POST /subjects/{id}/exams (multipart/form-data:
// files[], date). Every file is extracted independently.
//
//	@Summary	Extract exams from uploaded PDFs
//	@Tags		exams
//	@Accept		multipart/form-data
//	@Produce	json
//	@Success	200	{object}	BatchExamResponse
//	@Failure	400	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Router		/subjects/{id}/exams [post]
func (h *Handler) UploadExams(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	date := strings.TrimSpace(r.FormValue("date"))
	if _, err := time.Parse(exam.DateLayout, date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("date must use the %s layout", exam.DateLayout)))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files[]"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("at least one file is required in 'files'"))
		return
	}
	if _, err := h.study.GetSubject(r.Context(), id); err != nil {
		writeError(w, h.logger, "upload exams", err)
		return
	}

	staged, cleanup, err := stageFiles(headers)
	if err != nil {
		writeError(w, h.logger, "stage exam files", err)
		return
	}
	defer cleanup()

	res := h.exams.ExtractBatch(r.Context(), id, date, staged)
	if h.onExam != nil {
		for _, e := range res.Exams {
			h.onExam(e)
		}
	}
	h.logger.Info("exam batch processed",
		slog.Int64("subject_id", id),
		slog.Int("exams", len(res.Exams)),
		slog.Int("errors", len(res.Errors)))
	writeJSON(w, http.StatusOK, res)
}

// ListExams handles GET /subjects/{id}/exams.
func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	exams, err := h.study.ListExams(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "list exams", err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// GetExam handles GET /exams/{id}.
func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.study.GetExam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get exam", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteExam handles DELETE /exams/{id}.
func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.study.DeleteExam(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "delete exam", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListQuestions handles GET /exams/{id}/questions.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.study.ListQuestions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "list questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// ListAnswers handles GET /questions/{id}/answers.
func (h *Handler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	as, err := h.study.ListAnswers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "list answers", err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

// GenerateExam handles GET /subjects/{id}/generate-exam?num_questions=N.
func (h *Handler) GenerateExam(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	n, ok := queryInt(r, "num_questions", defaultPracticeQuestions)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("num_questions must be an integer"))
		return
	}
	e, err := h.study.PracticeExam(r.Context(), id, n)
	if err != nil {
		writeError(w, h.logger, "generate exam", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Search handles GET /subjects/{id}/search?query=&limit=.
//
//	@Summary	Similarity search over a subject's material
//	@Tags		search
//	@Produce	json
//	@Param		query	query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Router		/subjects/{id}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'query' is required"))
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok || limit < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
		return
	}
	if _, err := h.study.GetSubject(r.Context(), id); err != nil {
		writeError(w, h.logger, "search", err)
		return
	}

	results, err := h.search.Search(r.Context(), id, q, limit)
	if errors.Is(err, vectorindex.ErrNoIndex) {
		writeJSON(w, http.StatusOK, SearchResponse{
			Results: []retrieval.Result{},
			Message: "no indexed material for this subject",
		})
		return
	}
	if err != nil {
		writeError(w, h.logger, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results, TotalResults: len(results)})
}

// CorrectAnswer handles POST /get-correct-answer.
func (h *Handler) CorrectAnswer(w http.ResponseWriter, r *http.Request) {
	var req CorrectAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.answers.CorrectAnswer(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "correct answer", err)
		return
	}
	writeJSON(w, http.StatusOK, CorrectAnswerResponse{CorrectAnswer: out})
}

// ProcessResources handles POST /process-resources/manual.
func (h *Handler) ProcessResources(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, h.logger, "manual sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessResponse{
		Message:   fmt.Sprintf("processed %d pending resources", res.Total()),
		Processed: res.Processed,
		Failed:    res.Failed,
		Total:     res.Total(),
	})
}

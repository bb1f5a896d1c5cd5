package api

import (
	"github.com/starford/learnmate/internal/exam"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/studyservice"
	"github.com/starford/learnmate/internal/suggest"
)

// SubjectRequest is the body for creating or updating a subject.
type SubjectRequest = studyservice.SubjectInput

// Subject is the subject response type (aliased from the domain layer).
type Subject = models.Subject

// Resource is the resource response type (aliased from the domain layer).
type Resource = models.Resource

// Exam is the exam response type (aliased from the domain layer).
type Exam = models.Exam

// BatchExamResponse is returned by the exam upload endpoint.
type BatchExamResponse = exam.BatchResult

// SearchResponse wraps retrieval results.
type SearchResponse struct {
	Results      []retrieval.Result `json:"results" validate:"required"`
	TotalResults int                `json:"total_results" example:"5" validate:"required"`
	Message      string             `json:"message,omitempty" example:"no indexed material for this subject"`
}

// CorrectAnswerRequest is the body of the answer suggestion endpoint.
type CorrectAnswerRequest = suggest.Command

// CorrectAnswerResponse carries the model's answer.
type CorrectAnswerResponse struct {
	CorrectAnswer string `json:"correct_answer" validate:"required"`
}

// SuggestionsResponse carries starter topics for a subject.
type SuggestionsResponse struct {
	Suggestions string `json:"suggestions" validate:"required"`
}

// ProcessResponse summarises a manual sweep.
type ProcessResponse struct {
	Message   string `json:"message" example:"processed 3 pending resources"`
	Processed int    `json:"processed" example:"2"`
	Failed    int    `json:"failed" example:"1"`
	Total     int    `json:"total" example:"3"`
}

// Package suggest proposes the correct option of a multiple-choice question,
// grounded on the subject's indexed material.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tmc/langchaingo/prompts"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/vectorindex"
)

const (
	noIndexContext    = "No relevant context was found for this subject."
	noMatchingContext = "No relevant context found."
)

const systemPrompt = "You are an education expert who helps identify the correct answer " +
	"to multiple-choice questions. Use the provided context to support your answer, " +
	"but you may also rely on general knowledge when the context is not enough."

var userPrompt = prompts.NewPromptTemplate(`Relevant context:
{{.context}}

Question: {{.question}}

Available answers:
{{.answers}}

Carefully analyse the context and the question, then provide:
1. The number of the correct answer
2. A detailed explanation based on the provided context and/or general knowledge
3. If you found relevant information in the context, quote it to support your answer`,
	[]string{"context", "question", "answers"})

// Answer is one option of a question.
type Answer struct {
	Text string `json:"text"`
}

// Question is the question to answer together with its options.
type Question struct {
	Text    string   `json:"text"`
	Answers []Answer `json:"answers"`
}

// Command asks for the correct answer to Question using SubjectID's material.
type Command struct {
	Question  Question `json:"question"`
	SubjectID int64    `json:"subject_id"`
}

// Validate checks the command before any retrieval or model call.
func (c Command) Validate() error {
	err := validation.ValidateStruct(&c.Question,
		validation.Field(&c.Question.Text, validation.By(notBlank("question text"))),
		validation.Field(&c.Question.Answers,
			validation.Required.Error("at least one answer is required"),
			validation.Each(validation.By(answerNotBlank))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

func notBlank(what string) validation.RuleFunc {
	return func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s must not be empty", what)
		}
		return nil
	}
}

func answerNotBlank(v any) error {
	a, _ := v.(Answer)
	return notBlank("answer text")(a.Text)
}

// Retriever fetches the chunks closest to a query.
type Retriever interface {
	Search(ctx context.Context, subjectID int64, query string, k int) ([]retrieval.Result, error)
}

// Service answers Commands.
type Service struct {
	retriever Retriever
	chat      ai.ChatModel
	k         int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTopK sets how many chunks are used as context.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "suggest") }
}

// New creates a Service.
func New(retriever Retriever, chat ai.ChatModel, opts ...Option) *Service {
	s := &Service{
		retriever: retriever,
		chat:      chat,
		k:         retrieval.DefaultK,
		logger:    slog.Default().With("component", "suggest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CorrectAnswer returns the model's pick and explanation for cmd. Validation
// errors wrap apperr.ErrValidation; everything else wraps apperr.ErrAnswer.
func (s *Service) CorrectAnswer(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	out, err := s.answer(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrAnswer, err)
	}
	return out, nil
}

func (s *Service) answer(ctx context.Context, cmd Command) (string, error) {
	material, err := s.material(ctx, cmd)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(cmd.Question.Answers))
	for i, a := range cmd.Question.Answers {
		lines[i] = fmt.Sprintf("%d. %s", i+1, a.Text)
	}
	prompt, err := userPrompt.Format(map[string]any{
		"context":  material,
		"question": cmd.Question.Text,
		"answers":  strings.Join(lines, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	out, err := s.chat.Complete(ctx, systemPrompt, prompt, ai.WithTemperature(0))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *Service) material(ctx context.Context, cmd Command) (string, error) {
	results, err := s.retriever.Search(ctx, cmd.SubjectID, cmd.Question.Text, s.k)
	if errors.Is(err, vectorindex.ErrNoIndex) {
		s.logger.Debug("no index for subject", slog.Int64("subject_id", cmd.SubjectID))
		return noIndexContext, nil
	}
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	joined := strings.Join(parts, "\n\n")
	if strings.TrimSpace(joined) == "" {
		return noMatchingContext, nil
	}
	return joined, nil
}

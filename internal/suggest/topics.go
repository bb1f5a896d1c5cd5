package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/apperr"
)

var topicsPrompt = prompts.NewPromptTemplate(
	"Generate a list of topics and starting resources for a subject called '{{.name}}' "+
		"with the following description: '{{.description}}'.",
	[]string{"name", "description"})

// SubjectTopics asks the model for starter topics and resources of a new
// subject. It does not touch any index.
func (s *Service) SubjectTopics(ctx context.Context, name, description string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: name: cannot be blank", apperr.ErrValidation)
	}
	prompt, err := topicsPrompt.Format(map[string]any{"name": name, "description": description})
	if err != nil {
		return "", fmt.Errorf("%w: render prompt: %v", apperr.ErrAnswer, err)
	}
	out, err := s.chat.Complete(ctx, "", prompt, ai.WithTemperature(0.7), ai.WithMaxTokens(300))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrAnswer, err)
	}
	return strings.TrimSpace(out), nil
}

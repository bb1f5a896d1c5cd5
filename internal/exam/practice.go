package exam

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
)

// SamplePractice builds an unsaved practice exam from n questions drawn
// without replacement from pool. n is capped at len(pool). The questions keep
// their ids and answers but point at the new exam. rng may be nil.
func SamplePractice(subjectID int64, pool []models.Question, n int, rng *rand.Rand) (*models.Exam, error) {
	if n <= 0 {
		return nil, fmt.Errorf("num_questions must be positive: %w", apperr.ErrValidation)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("no questions found for subject %d: %w", subjectID, apperr.ErrNotFound)
	}
	n = min(n, len(pool))

	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	// Partial Fisher-Yates: the first n slots end up uniformly sampled.
	for i := 0; i < n; i++ {
		var j int
		if rng != nil {
			j = i + rng.IntN(len(idx)-i)
		} else {
			j = i + rand.IntN(len(idx)-i)
		}
		idx[i], idx[j] = idx[j], idx[i]
	}

	ex := &models.Exam{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		CreatedAt: time.Now().UTC(),
		Questions: make([]models.Question, 0, n),
	}
	for _, k := range idx[:n] {
		q := pool[k]
		q.ExamID = ex.ID
		q.Answers = append([]models.Answer(nil), q.Answers...)
		if q.Answers == nil {
			q.Answers = []models.Answer{}
		}
		ex.Questions = append(ex.Questions, q)
	}
	return ex, nil
}

// Package exam turns exam PDFs into stored question and answer trees and
// assembles practice exams from stored questions.
package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
)

// DefaultWorkers bounds concurrent extractions in a batch.
const DefaultWorkers = 4

const systemPrompt = "You are an expert extraction algorithm. " +
	"Uuids are unique identifiers and you should autogenerate them. " +
	"Only extract relevant information from the text. " +
	"If you do not know the value of an attribute asked to extract, " +
	"return null for the attribute's value.\n\n" +
	"Respond only with a JSON object of this shape:\n" +
	`{"date": string|null, "subject_id": integer|null, "questions": [` +
	`{"id": uuid, "text": string, "answers": [{"id": uuid, "text": string}]}]}`

// Parser extracts text from a document.
type Parser interface {
	ParseFile(ctx context.Context, path string) (string, error)
}

// Store persists extracted exams.
type Store interface {
	CreateExam(ctx context.Context, e *models.Exam) error
}

// Extractor runs the PDF → LLM → store pipeline.
type Extractor struct {
	parser  Parser
	chat    ai.ChatModel
	store   Store
	workers int
	logger  *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers bounds the batch worker pool.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the extractor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l.With("component", "exam") }
}

// NewExtractor creates an Extractor.
func NewExtractor(parser Parser, chat ai.ChatModel, store Store, opts ...Option) *Extractor {
	e := &Extractor{
		parser:  parser,
		chat:    chat,
		store:   store,
		workers: DefaultWorkers,
		logger:  slog.Default().With("component", "exam"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract validates cmd, extracts the exam it describes, stores it, and
// returns its id.
func (e *Extractor) Extract(ctx context.Context, cmd Command) (string, error) {
	ex, err := e.extract(ctx, cmd)
	if err != nil {
		return "", err
	}
	return ex.ID, nil
}

func (e *Extractor) extract(ctx context.Context, cmd Command) (*models.Exam, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	ex, err := e.run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrExtraction, err)
	}
	e.logger.Info("exam extracted",
		slog.String("exam_id", ex.ID),
		slog.Int64("subject_id", ex.SubjectID),
		slog.Int("questions", len(ex.Questions)))
	return ex, nil
}

func (e *Extractor) run(ctx context.Context, cmd Command) (*models.Exam, error) {
	text, err := e.parser.ParseFile(ctx, cmd.PDFPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("could not extract any text from the PDF file")
	}

	raw, err := e.chat.Complete(ctx, systemPrompt, text, ai.WithTemperature(0), ai.WithJSONMode())
	if err != nil {
		return nil, err
	}
	ex, err := decodeExam(raw)
	if err != nil {
		return nil, err
	}

	// The caller's date and subject win over whatever the model guessed.
	date := cmd.Date
	ex.Date = &date
	ex.SubjectID = cmd.SubjectID

	if err := e.store.CreateExam(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// llmExam mirrors the JSON shape requested from the model. Ids and the
// date/subject guesses are ignored.
type llmExam struct {
	Date      *string `json:"date"`
	SubjectID *int64  `json:"subject_id"`
	Questions []struct {
		Text    *string `json:"text"`
		Answers []struct {
			Text *string `json:"text"`
		} `json:"answers"`
	} `json:"questions"`
}

func decodeExam(raw string) (*models.Exam, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed llmExam
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	ex := &models.Exam{}
	for _, q := range parsed.Questions {
		if q.Text == nil || strings.TrimSpace(*q.Text) == "" {
			continue
		}
		mq := models.Question{Text: strings.TrimSpace(*q.Text)}
		for _, a := range q.Answers {
			if a.Text == nil || strings.TrimSpace(*a.Text) == "" {
				continue
			}
			mq.Answers = append(mq.Answers, models.Answer{Text: strings.TrimSpace(*a.Text)})
		}
		ex.Questions = append(ex.Questions, mq)
	}
	if len(ex.Questions) == 0 {
		return nil, errors.New("no questions found in the document")
	}
	return ex, nil
}

// BatchFile is one uploaded file of a batch. Name is reported in errors.
type BatchFile struct {
	Name string
	Path string
}

// BatchResult lists the exams created and one message per failed file.
type BatchResult struct {
	Exams  []models.Exam `json:"exams"`
	Errors []string      `json:"errors"`
}

// ExtractBatch extracts every file independently on a bounded worker pool.
// Failures are reported as "<name>: <message>" and never abort the batch.
// Exams and errors keep the order of files.
func (e *Extractor) ExtractBatch(ctx context.Context, subjectID int64, date string, files []BatchFile) BatchResult {
	type outcome struct {
		exam *models.Exam
		err  error
	}
	outcomes := make([]outcome, len(files))

	pool, err := ants.NewPool(min(e.workers, max(len(files), 1)))
	if err != nil {
		res := BatchResult{Exams: []models.Exam{}, Errors: []string{}}
		for _, f := range files {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Name, err))
		}
		return res
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			ex, err := e.extract(ctx, Command{PDFPath: f.Path, SubjectID: subjectID, Date: date})
			outcomes[i] = outcome{exam: ex, err: err}
		})
		if submitErr != nil {
			wg.Done()
			outcomes[i] = outcome{err: submitErr}
		}
	}
	wg.Wait()

	res := BatchResult{Exams: []models.Exam{}, Errors: []string{}}
	for i, o := range outcomes {
		if o.err != nil {
			e.logger.Warn("batch: file failed",
				slog.String("file", files[i].Name),
				slog.String("error", o.err.Error()))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", files[i].Name, o.err.Error()))
			continue
		}
		res.Exams = append(res.Exams, *o.exam)
	}
	return res
}

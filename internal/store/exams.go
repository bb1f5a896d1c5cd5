package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
)

// CreateExam persists an exam with its questions and answers in a single
// transaction. Fresh ids are assigned to every node of the tree and written
// back into e.
func (db *DB) CreateExam(ctx context.Context, e *models.Exam) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	e.ID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var date sql.NullString
	if e.Date != nil {
		date = sql.NullString{String: *e.Date, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exams (id, date, subject_id, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, date, e.SubjectID, e.CreatedAt); err != nil {
		return fmt.Errorf("store: insert exam: %w", err)
	}

	qStmt, err := tx.PrepareContext(ctx, `INSERT INTO questions (id, exam_id, position, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare question insert: %w", err)
	}
	defer qStmt.Close()
	aStmt, err := tx.PrepareContext(ctx, `INSERT INTO answers (id, question_id, position, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare answer insert: %w", err)
	}
	defer aStmt.Close()

	for i := range e.Questions {
		q := &e.Questions[i]
		q.ID = uuid.NewString()
		q.ExamID = e.ID
		if _, err := qStmt.ExecContext(ctx, q.ID, q.ExamID, i, q.Text); err != nil {
			return fmt.Errorf("store: insert question: %w", err)
		}
		for j := range q.Answers {
			a := &q.Answers[j]
			a.ID = uuid.NewString()
			a.QuestionID = q.ID
			if _, err := aStmt.ExecContext(ctx, a.ID, a.QuestionID, j, a.Text); err != nil {
				return fmt.Errorf("store: insert answer: %w", err)
			}
		}
	}
	return tx.Commit()
}

func scanExam(s scanner) (models.Exam, error) {
	var e models.Exam
	var date sql.NullString
	if err := s.Scan(&e.ID, &date, &e.SubjectID, &e.CreatedAt); err != nil {
		return e, err
	}
	if date.Valid {
		d := date.String
		e.Date = &d
	}
	e.Questions = []models.Question{}
	return e, nil
}

// GetExam returns an exam with its full question and answer tree.
func (db *DB) GetExam(ctx context.Context, id string) (*models.Exam, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, date, subject_id, created_at FROM exams WHERE id = ?`, id)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exam %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get exam: %w", err)
	}
	e.Questions, err = db.loadQuestions(ctx, `q.exam_id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExams returns the exams of a subject, newest first, with their
// questions and answers.
func (db *DB) ListExams(ctx context.Context, subjectID int64) ([]models.Exam, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, date, subject_id, created_at FROM exams WHERE subject_id = ? ORDER BY created_at DESC, id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("store: list exams: %w", err)
	}
	defer rows.Close()

	out := []models.Exam{}
	byID := make(map[string]int)
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = len(out)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	qs, err := db.loadQuestions(ctx, `e.subject_id = ?`, subjectID)
	if err != nil {
		return nil, err
	}
	for _, q := range qs {
		if i, ok := byID[q.ExamID]; ok {
			out[i].Questions = append(out[i].Questions, q)
		}
	}
	return out, nil
}

// DeleteExam removes an exam and, by cascade, its questions and answers.
func (db *DB) DeleteExam(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exam %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ListQuestions returns the questions of an exam with their answers.
func (db *DB) ListQuestions(ctx context.Context, examID string) ([]models.Question, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM exams WHERE id = ?`, examID).Scan(&n); err != nil {
		return nil, fmt.Errorf("store: exam exists: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("exam %s: %w", examID, apperr.ErrNotFound)
	}
	return db.loadQuestions(ctx, `q.exam_id = ?`, examID)
}

// SubjectQuestions returns every stored question of every exam of a subject.
func (db *DB) SubjectQuestions(ctx context.Context, subjectID int64) ([]models.Question, error) {
	return db.loadQuestions(ctx, `e.subject_id = ?`, subjectID)
}

// ListAnswers returns the answers of a question in their original order.
func (db *DB) ListAnswers(ctx context.Context, questionID string) ([]models.Answer, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM questions WHERE id = ?`, questionID).Scan(&n); err != nil {
		return nil, fmt.Errorf("store: question exists: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("question %s: %w", questionID, apperr.ErrNotFound)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, question_id, text FROM answers WHERE question_id = ? ORDER BY position`, questionID)
	if err != nil {
		return nil, fmt.Errorf("store: list answers: %w", err)
	}
	defer rows.Close()
	out := []models.Answer{}
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// loadQuestions fetches questions matching cond (over aliases q and e) and
// attaches their answers.
func (db *DB) loadQuestions(ctx context.Context, cond string, arg any) ([]models.Question, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT q.id, q.exam_id, q.text
		FROM questions q JOIN exams e ON e.id = q.exam_id
		WHERE `+cond+`
		ORDER BY e.created_at, q.exam_id, q.position`, arg)
	if err != nil {
		return nil, fmt.Errorf("store: load questions: %w", err)
	}
	out := []models.Question{}
	byID := make(map[string]int)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text); err != nil {
			rows.Close()
			return nil, err
		}
		q.Answers = []models.Answer{}
		byID[q.ID] = len(out)
		out = append(out, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.text
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		JOIN exams e ON e.id = q.exam_id
		WHERE `+cond+`
		ORDER BY a.question_id, a.position`, arg)
	if err != nil {
		return nil, fmt.Errorf("store: load answers: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var a models.Answer
		if err := arows.Scan(&a.ID, &a.QuestionID, &a.Text); err != nil {
			return nil, err
		}
		if i, ok := byID[a.QuestionID]; ok {
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	return out, arows.Err()
}

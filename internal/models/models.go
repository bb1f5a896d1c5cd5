// Package models defines the domain types for learnmate.
package models

import "time"

// ResourceType names the kind of study material a Resource holds.
type ResourceType string

const (
	ResourceBook ResourceType = "Book"
	ResourceNote ResourceType = "Note"
	ResourceLink ResourceType = "Link"
)

// ResourceTypes lists every accepted ResourceType.
var ResourceTypes = []ResourceType{ResourceBook, ResourceNote, ResourceLink}

// StoresFile reports whether uploads for this type are kept on disk.
// Links never keep a file.
func (t ResourceType) StoresFile() bool {
	return t == ResourceBook || t == ResourceNote
}

// ResourceStatus is the processing state of a Resource.
type ResourceStatus string

const (
	StatusPending   ResourceStatus = "pending"
	StatusProcessed ResourceStatus = "processed"
	StatusError     ResourceStatus = "error"
)

// Subject is a course or topic that owns resources and exams.
type Subject struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Resources   []Resource `json:"resources"`
}

// Resource is one piece of study material attached to a Subject.
type Resource struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	URL          string         `json:"url,omitempty"`
	Type         ResourceType   `json:"type"`
	Notes        string         `json:"notes,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	Status       ResourceStatus `json:"status"`
	SubjectID    int64          `json:"subject_id"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Exam is a set of questions extracted from a past exam paper.
// Date is nil when unknown.
type Exam struct {
	ID        string     `json:"id"`
	Date      *string    `json:"date"`
	SubjectID int64      `json:"subject_id"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions"`
}

// Question is a multiple-choice question owned by an Exam.
type Question struct {
	ID      string   `json:"id"`
	ExamID  string   `json:"exam_id"`
	Text    string   `json:"text"`
	Answers []Answer `json:"answers"`
}

// Answer is one option of a Question.
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

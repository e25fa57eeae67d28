package domain

import (
	"errors"
)

const (
	ExamStatusDraft     = "DRAFT"
	ExamStatusQueued    = "QUEUED"
	ExamStatusCompleted = "COMPLETED"
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrNotEnoughImages   = errors.New("not enough images uploaded")
	ErrUnsupportedUpload = errors.New("uploaded file is not an image")
	ErrUploadTooLarge    = errors.New("uploaded file is too large")
)

// JobMessage is the body published to the exam job queue
type JobMessage struct {
	ExamID int64    `json:"exam_id"`
	UserID int64    `json:"user_id"`
	Images []string `json:"images"`
}

// IsValidStatus reports whether s is a known exam status
func IsValidStatus(s string) bool {
	switch s {
	case ExamStatusDraft, ExamStatusQueued, ExamStatusCompleted:
		return true
	}
	return false
}

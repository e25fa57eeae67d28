package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/exam-worker/internal/api/model"
	"github.com/cuongbtq/exam-worker/internal/api/storage"
)

// ExamIDContextKey is the gin context key under which handlers record the
// exam a request is about, for request logging
const ExamIDContextKey = "exam_id"

// ExamStore persists exams
type ExamStore interface {
	CreateExam(ctx context.Context, userID int64, imagePath string) (*model.Exam, error)
	GetExam(ctx context.Context, examID int64) (*model.Exam, error)
	AppendImage(ctx context.Context, examID int64, imagePath string) (*model.Exam, error)
	UpdateStatus(ctx context.Context, examID int64, status, message string) error
	ListExams(ctx context.Context, filter storage.ExamFilter) ([]model.Exam, error)
}

// JobPublisher sends exam jobs to the queue
type JobPublisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// ExamRules are the intake limits applied by the handlers
type ExamRules struct {
	MinImages     int
	MaxImageBytes int64
	UploadDir     string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       ExamStore
	Publisher   JobPublisher
	Rules       ExamRules
	HealthCheck func(ctx context.Context) error
}

// ExamHandler handles exam-related HTTP requests
type ExamHandler struct {
	logger    *slog.Logger
	store     ExamStore
	publisher JobPublisher
	rules     ExamRules
}

// NewExamHandler creates a new ExamHandler instance
func NewExamHandler(deps *Dependencies) *ExamHandler {
	return &ExamHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		rules:     deps.Rules,
	}
}

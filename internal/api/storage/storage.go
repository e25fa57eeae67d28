package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/exam-worker/internal/api/domain"
	"github.com/cuongbtq/exam-worker/internal/api/model"
	"github.com/cuongbtq/exam-worker/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const examColumns = `
	exam_id, user_id, images, status,
	completion_message, created_at, updated_at
`

const schema = `
	CREATE TABLE IF NOT EXISTS exams (
		exam_id            BIGSERIAL PRIMARY KEY,
		user_id            BIGINT      NOT NULL,
		images             TEXT[]      NOT NULL DEFAULT '{}',
		status             TEXT        NOT NULL DEFAULT 'DRAFT',
		completion_message TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS exams_created_at_idx ON exams (created_at DESC, exam_id DESC);
	CREATE INDEX IF NOT EXISTS exams_user_id_idx ON exams (user_id);
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// NewStorageWithDB wraps an existing sqlx handle
func NewStorageWithDB(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// EnsureSchema creates the exams table when it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create exams schema: %w", err)
	}
	return nil
}

// CreateExam inserts a draft exam holding its first image
func (s *Storage) CreateExam(ctx context.Context, userID int64, imagePath string) (*model.Exam, error) {
	var exam model.Exam
	query := `
		INSERT INTO exams (user_id, images, status)
		VALUES ($1, ARRAY[$2::TEXT], $3)
		RETURNING ` + examColumns

	err := s.db.GetContext(ctx, &exam, query, userID, imagePath, domain.ExamStatusDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	return &exam, nil
}

func (s *Storage) GetExam(ctx context.Context, examID int64) (*model.Exam, error) {
	var exam model.Exam
	query := `SELECT ` + examColumns + ` FROM exams WHERE exam_id = $1`

	err := s.db.GetContext(ctx, &exam, query, examID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	return &exam, nil
}

// AppendImage adds an image path to the end of the exam's image list
func (s *Storage) AppendImage(ctx context.Context, examID int64, imagePath string) (*model.Exam, error) {
	var exam model.Exam
	query := `
		UPDATE exams
		SET images = array_append(images, $2), updated_at = NOW()
		WHERE exam_id = $1
		RETURNING ` + examColumns

	err := s.db.GetContext(ctx, &exam, query, examID, imagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append image: %w", err)
	}

	return &exam, nil
}

// UpdateStatus sets the exam status; message is stored when not empty
func (s *Storage) UpdateStatus(ctx context.Context, examID int64, status, message string) error {
	query := `
		UPDATE exams
		SET status = $2,
			completion_message = COALESCE(NULLIF($3, ''), completion_message),
			updated_at = NOW()
		WHERE exam_id = $1
	`

	res, err := s.db.ExecContext(ctx, query, examID, status, message)
	if err != nil {
		return fmt.Errorf("failed to update exam status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update exam status: %w", err)
	}
	if n == 0 {
		return domain.ErrExamNotFound
	}

	return nil
}

type ExamFilter struct {
	UserID   int64
	Status   string
	PageSize int
	Cursor   *ExamCursor
}

type ExamCursor struct {
	CreatedAt time.Time
	ExamID    int64
}

// BuildListQuery returns the SQL and arguments for ListExams
func BuildListQuery(filter ExamFilter) (string, []interface{}) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.UserID != 0 {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, exam_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ExamID)
		argIdx += 2
	}

	// Order by created_at DESC, exam_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, exam_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}

func (s *Storage) ListExams(ctx context.Context, filter ExamFilter) ([]model.Exam, error) {
	query, args := BuildListQuery(filter)

	var exams []model.Exam
	err := s.db.SelectContext(ctx, &exams, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	return exams, nil
}

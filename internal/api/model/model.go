package model

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Exam struct {
	ExamID            int64          `db:"exam_id"`
	UserID            int64          `db:"user_id"`
	Images            pq.StringArray `db:"images"`
	Status            string         `db:"status"`
	CompletionMessage sql.NullString `db:"completion_message"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// HasEnoughImages reports whether at least minImages images were uploaded
func (e *Exam) HasEnoughImages(minImages int) bool {
	return len(e.Images) >= minImages
}

package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/exam-worker/internal/api/storage"
)

func DecodeExamCursor(cursorStr string) (*storage.ExamCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	// "<created_at unix nanos>|<exam_id>"
	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	var examID int64
	if _, err := fmt.Sscanf(decodedParts[1], "%d", &examID); err != nil {
		return nil, fmt.Errorf("invalid exam_id in cursor: %w", err)
	}

	return &storage.ExamCursor{
		CreatedAt: time.Unix(0, createdAt),
		ExamID:    examID,
	}, nil
}

func EncodeExamCursor(cursor *storage.ExamCursor) string {
	cs := fmt.Sprintf("%d|%d", cursor.CreatedAt.UnixNano(), cursor.ExamID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}

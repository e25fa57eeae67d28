package router

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/exam-worker/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		target     string
		wantLevel  string
		wantRoute  string
		wantExamID interface{}
	}{
		{name: "exam request", target: "/exams/7", wantLevel: "INFO", wantRoute: "/exams/:exam_id", wantExamID: float64(7)},
		{name: "client error", target: "/exams/0", wantLevel: "WARN", wantRoute: "/exams/:exam_id", wantExamID: float64(0)},
		{name: "server error", target: "/broken", wantLevel: "ERROR", wantRoute: "/broken"},
		{name: "health probe", target: "/health", wantLevel: "DEBUG", wantRoute: "/health"},
		{name: "unknown route", target: "/nope", wantLevel: "WARN", wantRoute: "/nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			r := gin.New()
			r.Use(LoggerMiddleware(logger))
			r.GET("/exams/:exam_id", func(c *gin.Context) {
				if c.Param("exam_id") == "0" {
					c.Set(handler.ExamIDContextKey, int64(0))
					c.Status(http.StatusNotFound)
					return
				}
				c.Set(handler.ExamIDContextKey, int64(7))
				c.Status(http.StatusOK)
			})
			r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
			r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "HTTP Request", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantRoute, entry["route"])
			assert.Equal(t, tt.wantExamID, entry["exam_id"])
		})
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/exam-worker/internal/api/domain"
	"github.com/cuongbtq/exam-worker/internal/api/dto"
	"github.com/cuongbtq/exam-worker/internal/api/model"
	"github.com/cuongbtq/exam-worker/internal/api/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uploadsPrefix is the directory under the upload root that holds exam images
const uploadsPrefix = "uploads"

// UploadImage handles POST /upload-image
// Stores one exam image, creating the exam when no exam_id is given
func (h *ExamHandler) UploadImage(c *gin.Context) {
	var req dto.UploadImageRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid upload request", slog.String("error", err.Error()))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "image is required",
		})
		return
	}

	if err := h.checkImage(file); err != nil {
		h.logger.Warn("Rejected upload",
			slog.String("filename", file.Filename),
			slog.Int64("size", file.Size),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	var examID int64
	if req.ExamID != nil {
		examID = *req.ExamID
	}

	if examID != 0 {
		c.Set(ExamIDContextKey, examID)
		if _, err := h.store.GetExam(ctx, examID); err != nil {
			h.respondStoreError(c, err, "Failed to get exam")
			return
		}
	}

	imagePath := path.Join(uploadsPrefix, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	dst := filepath.Join(h.rules.UploadDir, filepath.FromSlash(imagePath))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		h.logger.Error("Failed to create upload directory", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store image",
		})
		return
	}

	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("Failed to store image", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store image",
		})
		return
	}

	var exam *model.Exam
	if examID == 0 {
		exam, err = h.store.CreateExam(ctx, req.UserID, imagePath)
	} else {
		exam, err = h.store.AppendImage(ctx, examID, imagePath)
	}
	if err != nil {
		_ = os.Remove(dst)
		h.respondStoreError(c, err, "Failed to save exam")
		return
	}
	c.Set(ExamIDContextKey, exam.ExamID)

	h.logger.Info("Exam image uploaded",
		slog.Int64("exam_id", exam.ExamID),
		slog.Int64("user_id", exam.UserID),
		slog.String("image_path", imagePath),
		slog.Int("uploaded_images", len(exam.Images)),
	)

	c.JSON(http.StatusOK, dto.UploadImageResponse{
		ExamID:         exam.ExamID,
		UploadedImages: len(exam.Images),
		ImagePath:      imagePath,
	})
}

// checkImage enforces the size limit and sniffs the content type
func (h *ExamHandler) checkImage(file *multipart.FileHeader) error {
	if file.Size > h.rules.MaxImageBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", domain.ErrUploadTooLarge, file.Size, h.rules.MaxImageBytes)
	}

	f, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return domain.ErrUnsupportedUpload
	}
	return nil
}

// FinishExam handles POST /finish-exam
// Publishes the exam to the job queue once enough images were uploaded
func (h *ExamHandler) FinishExam(c *gin.Context) {
	var req dto.FinishExamRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid finish request", slog.String("error", err.Error()))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Set(ExamIDContextKey, req.ExamID)
	ctx := c.Request.Context()

	exam, err := h.store.GetExam(ctx, req.ExamID)
	if err != nil {
		h.respondStoreError(c, err, "Failed to get exam")
		return
	}

	if !exam.HasEnoughImages(h.rules.MinImages) {
		h.logger.Info("Exam finished with too few images",
			slog.Int64("exam_id", exam.ExamID),
			slog.Int("uploaded_images", len(exam.Images)),
			slog.Int("min_images", h.rules.MinImages),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Not enough images uploaded.",
		})
		return
	}

	images := []string(exam.Images)
	if images == nil {
		images = []string{}
	}

	body, err := json.Marshal(domain.JobMessage{
		ExamID: exam.ExamID,
		UserID: exam.UserID,
		Images: images,
	})
	if err != nil {
		h.logger.Error("Failed to encode job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode job message",
		})
		return
	}

	if err := h.publisher.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish exam job",
			slog.Int64("exam_id", exam.ExamID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to send job to queue",
		})
		return
	}

	// the job is already queued, a failed status write is only logged
	if err := h.store.UpdateStatus(ctx, exam.ExamID, domain.ExamStatusQueued, ""); err != nil {
		h.logger.Error("Failed to mark exam queued",
			slog.Int64("exam_id", exam.ExamID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("Exam job published",
		slog.Int64("exam_id", exam.ExamID),
		slog.Int("images", len(images)),
	)

	c.JSON(http.StatusOK, gin.H{
		"message": "Exam finished and job sent to queue",
	})
}

// JobComplete handles POST /api/job-complete
// Receives the worker's completion notification
func (h *ExamHandler) JobComplete(c *gin.Context) {
	var req dto.JobCompleteRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid job-complete notification", slog.String("error", err.Error()))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Set(ExamIDContextKey, req.ExamID)

	message := req.Message
	if message == "" {
		message = "None"
	}

	h.logger.Info("Job complete notification received",
		slog.Int64("exam_id", req.ExamID),
		slog.String("message", message),
	)

	// the notification is acknowledged even when the status write fails
	if err := h.store.UpdateStatus(c.Request.Context(), req.ExamID, domain.ExamStatusCompleted, req.Message); err != nil {
		h.logger.Warn("Failed to mark exam completed",
			slog.Int64("exam_id", req.ExamID),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Notification logged",
	})
}

// GetExam handles GET /api/v1/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil || examID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "exam_id must be a positive integer",
		})
		return
	}

	c.Set(ExamIDContextKey, examID)

	exam, err := h.store.GetExam(c.Request.Context(), examID)
	if err != nil {
		h.respondStoreError(c, err, "Failed to get exam")
		return
	}

	c.JSON(http.StatusOK, toExamDTO(exam))
}

// ListExams handles GET /api/v1/exams
// Lists exams with optional filtering and cursor pagination
func (h *ExamHandler) ListExams(c *gin.Context) {
	var req dto.ListExamsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !domain.IsValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeExamCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	exams, err := h.store.ListExams(c.Request.Context(), storage.ExamFilter{
		UserID:   req.UserID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list exams", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list exams",
		})
		return
	}

	hasMore := len(exams) > req.PageSize
	if hasMore {
		exams = exams[:req.PageSize]
	}

	resp := dto.ListExamsResponse{
		Exams: make([]dto.ExamDTO, len(exams)),
	}
	for i := range exams {
		resp.Exams[i] = toExamDTO(&exams[i])
	}

	if hasMore {
		last := exams[len(exams)-1]
		resp.NextCursor = EncodeExamCursor(&storage.ExamCursor{
			CreatedAt: last.CreatedAt,
			ExamID:    last.ExamID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ExamHandler) respondStoreError(c *gin.Context, err error, msg string) {
	if errors.Is(err, domain.ErrExamNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Exam not found",
		})
		return
	}

	h.logger.Error(msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": msg,
	})
}

func toExamDTO(exam *model.Exam) dto.ExamDTO {
	images := []string(exam.Images)
	if images == nil {
		images = []string{}
	}
	return dto.ExamDTO{
		ExamID:            exam.ExamID,
		UserID:            exam.UserID,
		Images:            images,
		Status:            exam.Status,
		CompletionMessage: exam.CompletionMessage.String,
		CreatedAt:         exam.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         exam.UpdatedAt.Format(time.RFC3339),
	}
}

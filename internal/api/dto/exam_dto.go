package dto

type UploadImageRequest struct {
	UserID int64  `form:"user_id" binding:"required"`
	ExamID *int64 `form:"exam_id"`
}

type UploadImageResponse struct {
	ExamID         int64  `json:"exam_id"`
	UploadedImages int    `json:"uploaded_images"`
	ImagePath      string `json:"image_path"`
}

type FinishExamRequest struct {
	ExamID int64 `form:"exam_id" json:"exam_id" binding:"required"`
}

type JobCompleteRequest struct {
	ExamID  int64  `form:"exam_id" json:"exam_id" binding:"required"`
	Message string `form:"message" json:"message"`
}

type ListExamsRequest struct {
	UserID   int64  `form:"user_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListExamsResponse struct {
	Exams      []ExamDTO `json:"exams"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type ExamDTO struct {
	ExamID            int64    `json:"exam_id"`
	UserID            int64    `json:"user_id"`
	Images            []string `json:"images"`
	Status            string   `json:"status"`
	CompletionMessage string   `json:"completion_message,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

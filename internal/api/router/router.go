package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/exam-worker/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Multipart bodies above this size spill to temp files
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", healthHandler(deps.Logger, deps.HealthCheck))

	examHandler := handler.NewExamHandler(deps)

	// Intake endpoints used by the exam client
	r.POST("/upload-image", examHandler.UploadImage)
	r.POST("/finish-exam", examHandler.FinishExam)

	api := r.Group("/api")
	{
		// POST /api/job-complete - completion callback from the worker
		api.POST("/job-complete", examHandler.JobComplete)

		v1 := api.Group("/v1")
		{
			exams := v1.Group("/exams")
			{
				// GET /api/v1/exams - List exams with filtering and pagination
				exams.GET("", examHandler.ListExams)

				// GET /api/v1/exams/:exam_id - Get exam details
				exams.GET("/:exam_id", examHandler.GetExam)
			}
		}
	}

	return r
}

func healthHandler(logger *slog.Logger, check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := check(ctx); err != nil {
				logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "exam-api-service",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-api-service",
		})
	}
}

package app

import (
	"academix_backend/docs"
	"academix_backend/internal/config"
	"academix_backend/internal/middleware"
	"academix_backend/internal/model"
	"academix_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// Public routes
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
		public.GET("/certificates/:id/verify", c.certificate.VerifyCertificate)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// Student routes
		student := authGroup.Group("")
		student.Use(middleware.RoleMiddleware(model.Student))
		{
			student.GET("/exams/join/:publicId", c.exam.JoinExam)
			student.POST("/attempts", c.attempt.StartAttempt)
			student.PUT("/attempts/:id/answers", c.attempt.RecordAnswer)
			student.POST("/attempts/:id/submit", c.attempt.SubmitAttempt)
			student.GET("/attempts/:id/clock", c.attempt.Clock)
			student.GET("/attempts/:id/submission", c.attempt.GetSubmission)
			student.GET("/submissions", c.attempt.ListMySubmissions)
			student.GET("/certificates", c.certificate.ListCertificates)
			student.GET("/certificates/:id", c.certificate.GetCertificate)
		}

		// Teacher routes
		teacher := authGroup.Group("")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/courses", c.course.CreateCourse)
			teacher.GET("/courses", c.course.ListCourses)
			teacher.POST("/exams", c.exam.CreateExam)
			teacher.GET("/exams", c.exam.ListExams)
			teacher.GET("/exams/:id", c.exam.GetExam)
			teacher.PUT("/exams/:id", c.exam.UpdateExam)
			teacher.POST("/exams/:id/cancel", c.exam.CancelExam)
			teacher.GET("/exams/:id/results", c.exam.ExamResults)
		}

		// Shared routes
		authGroup.GET("/notifications", c.notification.ListNotifications)
		authGroup.POST("/notifications/:id/read", c.notification.MarkRead)
		authGroup.POST("/notifications/read-all", c.notification.MarkAllRead)
	}
}

package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/repository"
	"academix_backend/pkg/logger"
	"context"
	"fmt"

	"go.uber.org/zap"
)

type NotificationService struct {
	Notifications *repository.NotificationRepository
}

func NewNotificationService(notifications *repository.NotificationRepository) *NotificationService {
	return &NotificationService{Notifications: notifications}
}

// SubmissionGraded notifies the student of their result. Runs as a graded
// listener; a write failure is logged and dropped, the submission stands.
func (s *NotificationService) SubmissionGraded(ctx context.Context, submission *model.Submission, exam *model.Exam) {
	notification := &model.Notification{
		UserID: submission.StudentID,
		Type:   model.NotifyExamGraded,
		Title:  "Exam graded",
		Message: fmt.Sprintf("Your attempt for %q (%s) was graded: %.1f%%, %s.",
			exam.Title, exam.PublicID, submission.Score, submission.Result),
	}
	if err := s.Notifications.Create(notification); err != nil {
		logger.Log.Warn("graded notification failed",
			zap.Uint("studentId", submission.StudentID), zap.Error(err))
	}
}

func (s *NotificationService) List(userID uint, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	return s.Notifications.ListByUser(userID, unreadOnly, page, limit)
}

func (s *NotificationService) MarkRead(userID uint, id uint) error {
	return s.Notifications.MarkRead(userID, id)
}

func (s *NotificationService) MarkAllRead(userID uint) error {
	return s.Notifications.MarkAllRead(userID)
}

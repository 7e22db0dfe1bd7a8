package repository

import (
	"academix_backend/internal/model"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Create(submission *model.Submission) error {
	return r.DB.Create(submission).Error
}

func (r *SubmissionRepository) FindByAttempt(attemptID string) (*model.Submission, error) {
	var submission model.Submission
	err := r.DB.Where("attempt_id = ?", attemptID).First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionRepository) FindByStudentAndExam(studentID, examID uint) (*model.Submission, error) {
	var submission model.Submission
	err := r.DB.Where("student_id = ? AND exam_id = ?", studentID, examID).First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionRepository) ListByExam(examID uint) ([]model.Submission, error) {
	var submissions []model.Submission
	err := r.DB.Where("exam_id = ?", examID).Order("score desc, submitted_at asc").Find(&submissions).Error
	return submissions, err
}

func (r *SubmissionRepository) ListByStudent(studentID uint, page, limit int) ([]model.Submission, int64, error) {
	var submissions []model.Submission
	var total int64
	query := r.DB.Model(&model.Submission{}).Where("student_id = ?", studentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("submitted_at desc").Offset(offset).Limit(limit).Find(&submissions).Error
	return submissions, total, err
}

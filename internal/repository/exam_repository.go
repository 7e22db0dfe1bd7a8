package repository

import (
	"academix_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) Update(exam *model.Exam) error {
	return r.DB.Save(exam).Error
}

// FindByID loads the exam with its questions, answer keys included. Only the
// grading path and teacher views may see the result unfiltered.
func (r *ExamRepository) FindByID(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("questions.`order` asc, questions.id asc")
	}).Preload("Course").First(&exam, id).Error
	return &exam, err
}

func (r *ExamRepository) FindByPublicID(publicID string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("questions.`order` asc, questions.id asc")
	}).Preload("Course").Where("public_id = ?", publicID).First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) ListByCourse(courseID uint, page, limit int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64
	query := r.DB.Model(&model.Exam{}).Where("course_id = ?", courseID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("start_time desc").Offset(offset).Limit(limit).Find(&exams).Error
	return exams, total, err
}

func (r *ExamRepository) ListByTeacher(teacherID uint, status model.ExamStatus, page, limit int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64
	query := r.DB.Model(&model.Exam{}).
		Joins("JOIN courses ON courses.id = exams.course_id").
		Where("courses.teacher_id = ?", teacherID)
	if status != "" {
		query = query.Where("exams.status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Preload("Course").Order("exams.start_time desc").Offset(offset).Limit(limit).Find(&exams).Error
	return exams, total, err
}

func (r *ExamRepository) CreateQuestions(questions []model.Question) error {
	return r.DB.Create(&questions).Error
}

func (r *ExamRepository) DeleteQuestionsByExam(examID uint) error {
	return r.DB.Where("exam_id = ?", examID).Delete(&model.Question{}).Error
}

func (r *ExamRepository) UpdateStatus(examID uint, status model.ExamStatus) error {
	return r.DB.Model(&model.Exam{}).Where("id = ?", examID).Update("status", status).Error
}

// ListDueForTransition returns exams whose stored status no longer matches
// their schedule window, for the background sweep.
func (r *ExamRepository) ListDueForTransition(now time.Time) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.
		Where("status = ? AND start_time <= ?", model.ExamScheduled, now).
		Or("status = ? AND end_time < ?", model.ExamActive, now).
		Find(&exams).Error
	return exams, err
}

package repository

import (
	"academix_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) Create(cert *model.Certificate) error {
	return r.DB.Create(cert).Error
}

func (r *CertificateRepository) Update(cert *model.Certificate) error {
	return r.DB.Save(cert).Error
}

func (r *CertificateRepository) FindByID(id string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.Where("id = ?", id).First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) FindByStudentAndExam(studentID, examID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.Where("student_id = ? AND exam_id = ?", studentID, examID).First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) ListByStudent(studentID uint, page, limit int) ([]model.Certificate, int64, error) {
	var certs []model.Certificate
	var total int64
	query := r.DB.Model(&model.Certificate{}).Where("student_id = ?", studentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&certs).Error
	return certs, total, err
}

// ListPendingForRetry returns failed issuance attempts old enough to retry.
func (r *CertificateRepository) ListPendingForRetry(olderThan time.Time, limit int) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.
		Where("status = ? AND last_error <> '' AND updated_at < ?", model.CertificatePending, olderThan).
		Limit(limit).
		Find(&certs).Error
	return certs, err
}

package model

import "time"

type CertificateStatus string

const (
	CertificatePending CertificateStatus = "pending"
	CertificateIssued  CertificateStatus = "issued"
	CertificateRevoked CertificateStatus = "revoked"
)

// Certificate records one issuance request per (student, exam) pair. A row in
// pending state with a non-empty LastError is picked up by the retry worker.
// swagger:model Certificate
type Certificate struct {
	UUIDBase
	StudentID       uint              `gorm:"type:bigint unsigned;uniqueIndex:idx_cert_student_exam" json:"studentId"`
	ExamID          uint              `gorm:"type:bigint unsigned;uniqueIndex:idx_cert_student_exam" json:"examId"`
	CourseID        uint              `gorm:"index;type:bigint unsigned" json:"courseId"`
	SubmissionID    string            `gorm:"size:36;index;not null" json:"submissionId"`
	Status          CertificateStatus `gorm:"size:20;default:'pending';index" json:"status"`
	TokenID         string            `gorm:"size:100;index" json:"tokenId,omitempty"`
	TransactionHash string            `gorm:"size:100" json:"transactionHash,omitempty"`
	MetadataURL     string            `gorm:"size:512" json:"metadataUrl,omitempty"`
	IssuedAt        *time.Time        `json:"issuedAt,omitempty"`
	OutdateTime     *time.Time        `json:"outdateTime,omitempty"`
	LastError       string            `gorm:"type:text" json:"-"`
	RetryCount      int               `gorm:"default:0" json:"-"`
}

func (Certificate) TableName() string {
	return "certificates"
}

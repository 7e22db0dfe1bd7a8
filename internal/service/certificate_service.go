package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/repository"
	"academix_backend/internal/util"
	"academix_backend/pkg/blockchain"
	"academix_backend/pkg/logger"
	"academix_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CertificateStore persists issuance records. Create must reject a second row
// for the same (student, exam) pair.
type CertificateStore interface {
	Create(cert *model.Certificate) error
	Update(cert *model.Certificate) error
	FindByID(id string) (*model.Certificate, error)
	FindByStudentAndExam(studentID, examID uint) (*model.Certificate, error)
	ListByStudent(studentID uint, page, limit int) ([]model.Certificate, int64, error)
	ListPendingForRetry(olderThan time.Time, limit int) ([]model.Certificate, error)
}

// CertificateIssuer is the on-chain issuance collaborator.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, req blockchain.IssueRequest) (*blockchain.CertificateHandle, error)
	VerifyCertificate(ctx context.Context, tokenID string) (bool, error)
}

// StudentDirectory resolves student ids to profiles for the metadata document.
type StudentDirectory interface {
	FindByID(id uint) (*model.User, error)
}

// CertificateService is the eligibility gate between grading and issuance:
// only passed submissions get through, at most one certificate per
// (student, exam) pair ever exists, and an issuer outage leaves a pending row
// for the retry worker instead of losing the certificate.
type CertificateService struct {
	Certs         CertificateStore
	Users         StudentDirectory
	Exams         ExamCatalog
	Submissions   SubmissionStore
	Issuer        CertificateIssuer
	Storage       StorageProvider
	Notifications *repository.NotificationRepository

	ValidityMonths int
	Now            func() time.Time
}

func NewCertificateService(certs CertificateStore, users StudentDirectory, exams ExamCatalog,
	submissions SubmissionStore, issuer CertificateIssuer, storage StorageProvider,
	notifications *repository.NotificationRepository, validityMonths int) *CertificateService {
	if validityMonths <= 0 {
		validityMonths = 24
	}
	return &CertificateService{
		Certs:          certs,
		Users:          users,
		Exams:          exams,
		Submissions:    submissions,
		Issuer:         issuer,
		Storage:        storage,
		Notifications:  notifications,
		ValidityMonths: validityMonths,
		Now:            time.Now,
	}
}

// SubmissionGraded is the hook the session state machine fires after grading.
// Failed submissions are ignored; passed ones enter the issuance pipeline.
func (s *CertificateService) SubmissionGraded(ctx context.Context, submission *model.Submission, exam *model.Exam) {
	if submission.Result != model.ResultPassed {
		return
	}
	if existing, err := s.Certs.FindByStudentAndExam(submission.StudentID, submission.ExamID); err == nil && existing != nil {
		return
	}

	cert := &model.Certificate{
		StudentID:    submission.StudentID,
		ExamID:       submission.ExamID,
		CourseID:     exam.CourseID,
		SubmissionID: submission.ID,
		Status:       model.CertificatePending,
	}
	cert.ID = model.GenerateUUID()
	if err := s.Certs.Create(cert); err != nil {
		// Unique index on (student, exam): a concurrent grading already
		// created the record.
		logger.Log.Debug("certificate record already exists",
			zap.Uint("studentId", submission.StudentID), zap.Uint("examId", submission.ExamID))
		return
	}

	if err := s.issue(ctx, cert, submission, exam); err != nil {
		logger.Log.Error("certificate issuance failed, left pending for retry",
			zap.String("certificateId", cert.ID), zap.Error(err))
	}
}

type certificateMetadata struct {
	StudentName  string    `json:"studentName"`
	CourseName   string    `json:"courseName"`
	ExamTitle    string    `json:"examTitle"`
	ExamPublicID string    `json:"examPublicId"`
	Score        float64   `json:"score"`
	SubmittedAt  time.Time `json:"submittedAt"`
	IssuedAt     time.Time `json:"issuedAt"`
	OutdateTime  time.Time `json:"outdateTime"`
}

func (s *CertificateService) issue(ctx context.Context, cert *model.Certificate, submission *model.Submission, exam *model.Exam) error {
	student, err := s.Users.FindByID(cert.StudentID)
	if err != nil {
		return s.recordFailure(cert, fmt.Errorf("student lookup: %w", err))
	}

	now := s.Now()
	outdate := now.AddDate(0, s.ValidityMonths, 0)
	courseName := ""
	if exam.Course != nil {
		courseName = exam.Course.CourseName
	}

	metadata := certificateMetadata{
		StudentName:  student.Name,
		CourseName:   courseName,
		ExamTitle:    exam.Title,
		ExamPublicID: exam.PublicID,
		Score:        submission.Score,
		SubmittedAt:  submission.SubmittedAt,
		IssuedAt:     now,
		OutdateTime:  outdate,
	}
	doc, err := json.Marshal(metadata)
	if err != nil {
		return s.recordFailure(cert, err)
	}
	metadataURL, err := s.Storage.Put(ctx, fmt.Sprintf("certificates/%s.json", cert.ID), doc, "application/json")
	if err != nil {
		return s.recordFailure(cert, fmt.Errorf("metadata upload: %w", err))
	}

	handle, err := s.Issuer.IssueCertificate(ctx, blockchain.IssueRequest{
		StudentID:    student.ID,
		StudentName:  student.Name,
		CourseName:   courseName,
		ExamPublicID: exam.PublicID,
		SubmissionID: submission.ID,
		Score:        submission.Score,
		MetadataURL:  metadataURL,
		OutdateTime:  outdate.Format(time.RFC3339),
	})
	if err != nil {
		return s.recordFailure(cert, err)
	}

	cert.Status = model.CertificateIssued
	cert.TokenID = handle.TokenID
	cert.TransactionHash = handle.TransactionHash
	cert.MetadataURL = metadataURL
	cert.IssuedAt = &now
	cert.OutdateTime = &outdate
	cert.LastError = ""
	if err := s.Certs.Update(cert); err != nil {
		return err
	}
	monitoring.CertificateIssuance.WithLabelValues("issued").Inc()

	if s.Notifications != nil {
		notification := &model.Notification{
			UserID:  cert.StudentID,
			Type:    model.NotifyCertificateIssued,
			Title:   "Certificate issued",
			Message: fmt.Sprintf("Your certificate for %q is ready (token %s).", exam.Title, cert.TokenID),
		}
		if err := s.Notifications.Create(notification); err != nil {
			logger.Log.Warn("certificate notification failed", zap.Uint("studentId", cert.StudentID), zap.Error(err))
		}
	}

	logger.Log.Info("certificate issued",
		zap.String("certificateId", cert.ID), zap.String("tokenId", cert.TokenID),
		zap.Uint("studentId", cert.StudentID), zap.String("examPublicId", exam.PublicID))
	return nil
}

func (s *CertificateService) recordFailure(cert *model.Certificate, cause error) error {
	cert.LastError = cause.Error()
	cert.RetryCount++
	if err := s.Certs.Update(cert); err != nil {
		logger.Log.Error("failed to record issuance failure",
			zap.String("certificateId", cert.ID), zap.Error(err))
	}
	monitoring.CertificateIssuance.WithLabelValues("failed").Inc()
	return cause
}

// RetryPending is the scheduled worker that re-drives pending issuances left
// behind by an issuer or storage outage.
func (s *CertificateService) RetryPending(ctx context.Context) error {
	pending, err := s.Certs.ListPendingForRetry(s.Now(), 20)
	if err != nil {
		return err
	}
	for i := range pending {
		cert := pending[i]
		exam, err := s.Exams.FindByID(cert.ExamID)
		if err != nil {
			logger.Log.Error("certificate retry: exam lookup failed",
				zap.String("certificateId", cert.ID), zap.Error(err))
			continue
		}
		submission, err := s.Submissions.FindByStudentAndExam(cert.StudentID, cert.ExamID)
		if err != nil {
			logger.Log.Error("certificate retry: submission lookup failed",
				zap.String("certificateId", cert.ID), zap.Error(err))
			continue
		}
		if err := s.issue(ctx, &cert, submission, exam); err != nil {
			logger.Log.Warn("certificate retry failed",
				zap.String("certificateId", cert.ID), zap.Int("retryCount", cert.RetryCount), zap.Error(err))
		}
	}
	return nil
}

func (s *CertificateService) ListByStudent(studentID uint, page, limit int) ([]model.Certificate, int64, error) {
	return s.Certs.ListByStudent(studentID, page, limit)
}

func (s *CertificateService) GetForStudent(certID string, studentID uint) (*model.Certificate, error) {
	cert, err := s.Certs.FindByID(certID)
	if err != nil {
		return nil, util.ErrCertificateNotFound
	}
	if cert.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return cert, nil
}

// Verify checks an issued certificate against the chain by its record id.
func (s *CertificateService) Verify(ctx context.Context, certID string) (bool, *model.Certificate, error) {
	cert, err := s.Certs.FindByID(certID)
	if err != nil {
		return false, nil, err
	}
	if cert.Status != model.CertificateIssued {
		return false, cert, nil
	}
	valid, err := s.Issuer.VerifyCertificate(ctx, cert.TokenID)
	if err != nil {
		return false, cert, err
	}
	return valid, cert, nil
}

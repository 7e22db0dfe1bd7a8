package service

import (
	"academix_backend/internal/model"
	"academix_backend/pkg/blockchain"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeCertStore struct {
	certs map[string]*model.Certificate
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{certs: make(map[string]*model.Certificate)}
}

func certKey(studentID, examID uint) string {
	return fmt.Sprintf("%d:%d", studentID, examID)
}

func (f *fakeCertStore) Create(cert *model.Certificate) error {
	key := certKey(cert.StudentID, cert.ExamID)
	if _, ok := f.certs[key]; ok {
		return errors.New("duplicate certificate")
	}
	copied := *cert
	f.certs[key] = &copied
	return nil
}

func (f *fakeCertStore) Update(cert *model.Certificate) error {
	copied := *cert
	f.certs[certKey(cert.StudentID, cert.ExamID)] = &copied
	return nil
}

func (f *fakeCertStore) FindByID(id string) (*model.Certificate, error) {
	for _, cert := range f.certs {
		if cert.ID == id {
			copied := *cert
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeCertStore) FindByStudentAndExam(studentID, examID uint) (*model.Certificate, error) {
	cert, ok := f.certs[certKey(studentID, examID)]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *cert
	return &copied, nil
}

func (f *fakeCertStore) ListByStudent(studentID uint, page, limit int) ([]model.Certificate, int64, error) {
	var out []model.Certificate
	for _, cert := range f.certs {
		if cert.StudentID == studentID {
			out = append(out, *cert)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeCertStore) ListPendingForRetry(olderThan time.Time, limit int) ([]model.Certificate, error) {
	var out []model.Certificate
	for _, cert := range f.certs {
		if cert.Status == model.CertificatePending && cert.LastError != "" {
			out = append(out, *cert)
		}
	}
	return out, nil
}

type stubIssuer struct {
	fail   bool
	calls  int
	issued []blockchain.IssueRequest
}

func (s *stubIssuer) IssueCertificate(ctx context.Context, req blockchain.IssueRequest) (*blockchain.CertificateHandle, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("issuer unavailable")
	}
	s.issued = append(s.issued, req)
	return &blockchain.CertificateHandle{
		TokenID:         fmt.Sprintf("token-%d", s.calls),
		TransactionHash: "0xabc",
		MetadataHash:    "Qm123",
	}, nil
}

func (s *stubIssuer) VerifyCertificate(ctx context.Context, tokenID string) (bool, error) {
	return tokenID != "", nil
}

type stubStorage struct {
	objects map[string][]byte
}

func (s *stubStorage) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[objectName] = data
	return "https://storage.test/" + objectName, nil
}

type stubDirectory struct{}

func (stubDirectory) FindByID(id uint) (*model.User, error) {
	user := &model.User{Name: "Ada Student", Email: "ada@test.dev", Role: model.Student}
	user.ID = id
	return user, nil
}

func passedSubmission(exam *model.Exam) *model.Submission {
	submission := &model.Submission{
		AttemptID:      "attempt-1",
		ExamID:         exam.ID,
		StudentID:      42,
		Score:          88.5,
		TotalQuestions: 20,
		CorrectAnswers: 17,
		Result:         model.ResultPassed,
		SubmittedAt:    sessionNow,
	}
	submission.ID = "submission-1"
	return submission
}

func newTestCertificateService(exam *model.Exam, issuer *stubIssuer) (*CertificateService, *fakeCertStore) {
	certs := newFakeCertStore()
	catalog := &fakeExamCatalog{exams: map[uint]*model.Exam{exam.ID: exam}}
	submissions := newFakeSubmissionStore()

	svc := NewCertificateService(certs, stubDirectory{}, catalog, submissions, issuer, &stubStorage{}, nil, 24)
	svc.Now = func() time.Time { return sessionNow }
	return svc, certs
}

func TestCertificateGateIgnoresFailedSubmissions(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{}
	svc, certs := newTestCertificateService(exam, issuer)

	submission := passedSubmission(exam)
	submission.Result = model.ResultFailed
	svc.SubmissionGraded(context.Background(), submission, exam)

	if len(certs.certs) != 0 {
		t.Fatalf("certificate created for a failed submission")
	}
	if issuer.calls != 0 {
		t.Fatalf("issuer called for a failed submission")
	}
}

func TestCertificateIssuedForPass(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{}
	svc, certs := newTestCertificateService(exam, issuer)

	svc.SubmissionGraded(context.Background(), passedSubmission(exam), exam)

	cert, err := certs.FindByStudentAndExam(42, exam.ID)
	if err != nil {
		t.Fatalf("certificate not created: %v", err)
	}
	if cert.Status != model.CertificateIssued {
		t.Errorf("Status = %v, want issued", cert.Status)
	}
	if cert.TokenID == "" || cert.TransactionHash == "" {
		t.Errorf("missing chain handle: tokenId=%q tx=%q", cert.TokenID, cert.TransactionHash)
	}
	if cert.MetadataURL == "" {
		t.Error("missing metadata URL")
	}
	if cert.IssuedAt == nil || !cert.IssuedAt.Equal(sessionNow) {
		t.Errorf("IssuedAt = %v, want %v", cert.IssuedAt, sessionNow)
	}
	wantOutdate := sessionNow.AddDate(0, 24, 0)
	if cert.OutdateTime == nil || !cert.OutdateTime.Equal(wantOutdate) {
		t.Errorf("OutdateTime = %v, want %v", cert.OutdateTime, wantOutdate)
	}

	if len(issuer.issued) != 1 {
		t.Fatalf("issuer calls = %d, want 1", len(issuer.issued))
	}
	req := issuer.issued[0]
	if req.ExamPublicID != exam.PublicID || req.Score != 88.5 {
		t.Errorf("issue request = %+v", req)
	}
}

func TestCertificateDedupePerStudentAndExam(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{}
	svc, certs := newTestCertificateService(exam, issuer)
	ctx := context.Background()

	svc.SubmissionGraded(ctx, passedSubmission(exam), exam)
	svc.SubmissionGraded(ctx, passedSubmission(exam), exam)

	if len(certs.certs) != 1 {
		t.Fatalf("certificate count = %d, want 1", len(certs.certs))
	}
	if issuer.calls != 1 {
		t.Fatalf("issuer calls = %d, want 1", issuer.calls)
	}
}

func TestCertificateIssuerOutageLeavesPending(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{fail: true}
	svc, certs := newTestCertificateService(exam, issuer)

	svc.SubmissionGraded(context.Background(), passedSubmission(exam), exam)

	cert, err := certs.FindByStudentAndExam(42, exam.ID)
	if err != nil {
		t.Fatalf("pending record not created: %v", err)
	}
	if cert.Status != model.CertificatePending {
		t.Errorf("Status = %v, want pending", cert.Status)
	}
	if cert.LastError == "" {
		t.Error("LastError not recorded")
	}
	if cert.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", cert.RetryCount)
	}
}

func TestCertificateRetryPending(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{fail: true}
	svc, certs := newTestCertificateService(exam, issuer)
	ctx := context.Background()

	// The retry path looks the submission up again.
	if err := svc.Submissions.Create(passedSubmission(exam)); err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	svc.SubmissionGraded(ctx, passedSubmission(exam), exam)

	issuer.fail = false
	if err := svc.RetryPending(ctx); err != nil {
		t.Fatalf("RetryPending: %v", err)
	}

	cert, err := certs.FindByStudentAndExam(42, exam.ID)
	if err != nil {
		t.Fatalf("certificate missing after retry: %v", err)
	}
	if cert.Status != model.CertificateIssued {
		t.Errorf("Status = %v, want issued after retry", cert.Status)
	}
	if cert.LastError != "" {
		t.Errorf("LastError = %q, want cleared", cert.LastError)
	}
}

func TestCertificateVerify(t *testing.T) {
	exam := testExam(5)
	issuer := &stubIssuer{}
	svc, certs := newTestCertificateService(exam, issuer)
	ctx := context.Background()

	svc.SubmissionGraded(ctx, passedSubmission(exam), exam)
	cert, err := certs.FindByStudentAndExam(42, exam.ID)
	if err != nil {
		t.Fatalf("certificate missing: %v", err)
	}

	valid, got, err := svc.Verify(ctx, cert.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !valid {
		t.Error("valid = false for an issued certificate")
	}
	if got.TokenID != cert.TokenID {
		t.Errorf("TokenID = %q, want %q", got.TokenID, cert.TokenID)
	}
}

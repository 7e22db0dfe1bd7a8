package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/util"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var sessionNow = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*model.AttemptSession
	cache    map[string]map[uint]int
	nextID   int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[string]*model.AttemptSession),
		cache:    make(map[string]map[uint]int),
	}
}

func (f *fakeAttemptStore) Create(attempt *model.AttemptSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.StudentID == attempt.StudentID && existing.ExamID == attempt.ExamID {
			return fmt.Errorf("duplicate attempt for student %d exam %d", attempt.StudentID, attempt.ExamID)
		}
	}
	f.nextID++
	attempt.ID = fmt.Sprintf("attempt-%d", f.nextID)
	copied := *attempt
	f.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeAttemptStore) FindByID(id string) (*model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *attempt
	return &copied, nil
}

func (f *fakeAttemptStore) FindByStudentAndExam(studentID, examID uint) (*model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.StudentID == studentID && attempt.ExamID == examID {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAttemptStore) SaveAnswers(ctx context.Context, attempt *model.AttemptSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[attempt.ID]
	if !ok || stored.Status != model.AttemptInProgress {
		return errors.New("attempt is not writable")
	}
	stored.Answers = attempt.Answers
	answers, err := attempt.DecodeAnswers()
	if err != nil {
		return err
	}
	f.cache[attempt.ID] = answers
	return nil
}

func (f *fakeAttemptStore) CachedAnswers(ctx context.Context, attemptID string) map[uint]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache[attemptID]
}

func (f *fakeAttemptStore) DropCachedAnswers(ctx context.Context, attemptID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, attemptID)
}

func (f *fakeAttemptStore) ConditionalTransition(id string, from, to model.AttemptStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.Status != from {
		return false, nil
	}
	attempt.Status = to
	return true, nil
}

func (f *fakeAttemptStore) MarkExpired(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt, ok := f.attempts[id]; ok {
		attempt.Expired = true
	}
	return nil
}

func (f *fakeAttemptStore) ListExpiredInProgress(now time.Time, limit int) ([]model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AttemptSession
	for _, attempt := range f.attempts {
		if attempt.Status == model.AttemptInProgress && now.After(attempt.Deadline) {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) AbandonByExam(examID uint) ([]model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AttemptSession
	for _, attempt := range f.attempts {
		if attempt.ExamID == examID &&
			(attempt.Status == model.AttemptInProgress || attempt.Status == model.AttemptSubmitting) {
			attempt.Status = model.AttemptAbandoned
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) status(t *testing.T, id string) model.AttemptStatus {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		t.Fatalf("attempt %s not found", id)
	}
	return attempt.Status
}

type fakeExamCatalog struct {
	exams map[uint]*model.Exam
}

func (f *fakeExamCatalog) FindByID(id uint) (*model.Exam, error) {
	exam, ok := f.exams[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return exam, nil
}

func (f *fakeExamCatalog) FindByPublicID(publicID string) (*model.Exam, error) {
	for _, exam := range f.exams {
		if exam.PublicID == publicID {
			return exam, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeSubmissionStore struct {
	mu          sync.Mutex
	submissions map[string]*model.Submission
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{submissions: make(map[string]*model.Submission)}
}

func (f *fakeSubmissionStore) Create(submission *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.submissions[submission.AttemptID]; ok {
		return fmt.Errorf("duplicate submission for attempt %s", submission.AttemptID)
	}
	copied := *submission
	f.submissions[submission.AttemptID] = &copied
	return nil
}

func (f *fakeSubmissionStore) FindByAttempt(attemptID string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	submission, ok := f.submissions[attemptID]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *submission
	return &copied, nil
}

func (f *fakeSubmissionStore) FindByStudentAndExam(studentID, examID uint) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, submission := range f.submissions {
		if submission.StudentID == studentID && submission.ExamID == examID {
			copied := *submission
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeSubmissionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

type recordingListener struct {
	mu    sync.Mutex
	calls int
}

func (l *recordingListener) SubmissionGraded(ctx context.Context, submission *model.Submission, exam *model.Exam) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// testExam builds an active exam with the given question count, all keyed to
// option 1, open for two hours around sessionNow.
func testExam(questionCount int) *model.Exam {
	exam := &model.Exam{
		PublicID:        "E042917",
		Title:           "Networks Final",
		CourseID:        7,
		DurationMinutes: 45,
		PassThreshold:   70,
		StartTime:       sessionNow.Add(-time.Hour),
		EndTime:         sessionNow.Add(time.Hour),
		Status:          model.ExamActive,
		Questions:       keyedQuestions(questionCount),
	}
	exam.ID = 1
	return exam
}

func newTestSession(exam *model.Exam) (*SessionService, *fakeAttemptStore, *fakeSubmissionStore, *recordingListener) {
	attempts := newFakeAttemptStore()
	submissions := newFakeSubmissionStore()
	listener := &recordingListener{}
	catalog := &fakeExamCatalog{exams: map[uint]*model.Exam{exam.ID: exam}}

	svc := NewSessionService(attempts, catalog, submissions, listener)
	svc.Now = func() time.Time { return sessionNow }
	svc.SubmitWait = 200 * time.Millisecond
	svc.PollInterval = 5 * time.Millisecond
	return svc, attempts, submissions, listener
}

func TestStartAttemptWindowChecks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.Exam)
		wantErr error
	}{
		{"before the window", func(e *model.Exam) {
			e.StartTime = sessionNow.Add(time.Hour)
			e.EndTime = sessionNow.Add(2 * time.Hour)
			e.Status = model.ExamScheduled
		}, util.ErrExamNotActive},
		{"after the window", func(e *model.Exam) {
			e.StartTime = sessionNow.Add(-2 * time.Hour)
			e.EndTime = sessionNow.Add(-time.Hour)
		}, util.ErrExamWindowClosed},
		{"cancelled", func(e *model.Exam) {
			e.Status = model.ExamCancelled
		}, util.ErrExamNotActive},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exam := testExam(5)
			tc.mutate(exam)
			svc, _, _, _ := newTestSession(exam)

			if _, err := svc.StartAttempt(context.Background(), exam.PublicID, 42); !errors.Is(err, tc.wantErr) {
				t.Fatalf("StartAttempt: err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestStartAttemptSetsDeadline(t *testing.T) {
	exam := testExam(5)
	svc, _, _, _ := newTestSession(exam)

	attempt, err := svc.StartAttempt(context.Background(), exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if attempt.Status != model.AttemptInProgress {
		t.Errorf("Status = %v, want in_progress", attempt.Status)
	}
	want := sessionNow.Add(45 * time.Minute)
	if !attempt.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", attempt.Deadline, want)
	}
}

func TestStartAttemptResumes(t *testing.T) {
	exam := testExam(5)
	svc, _, _, _ := newTestSession(exam)
	ctx := context.Background()

	first, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	second, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("second StartAttempt: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("resume created a new attempt: %s vs %s", first.ID, second.ID)
	}
}

func TestStartAttemptAfterGraded(t *testing.T) {
	exam := testExam(2)
	svc, _, _, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.SubmitAttempt(ctx, attempt.ID, 42); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, exam.PublicID, 42); !errors.Is(err, util.ErrAlreadySubmitted) {
		t.Fatalf("restart after graded: err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestRecordAnswer(t *testing.T) {
	exam := testExam(5)
	svc, attempts, _, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, 1, 3); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	// Overwrite the same question.
	updated, err := svc.RecordAnswer(ctx, attempt.ID, 42, 1, 2)
	if err != nil {
		t.Fatalf("RecordAnswer overwrite: %v", err)
	}

	answers, err := updated.DecodeAnswers()
	if err != nil {
		t.Fatalf("DecodeAnswers: %v", err)
	}
	if answers[1] != 2 {
		t.Errorf("answers[1] = %d, want 2", answers[1])
	}
	if len(answers) != 1 {
		t.Errorf("len(answers) = %d, want 1", len(answers))
	}
	if cached := attempts.CachedAnswers(ctx, attempt.ID); cached[1] != 2 {
		t.Errorf("autosave cache = %v, want question 1 -> 2", cached)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	exam := testExam(3)
	svc, _, _, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, 1, 7); !errors.Is(err, util.ErrInvalidOption) {
		t.Errorf("bad option: err = %v, want ErrInvalidOption", err)
	}
	if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, 99, 2); !errors.Is(err, util.ErrUnknownQuestion) {
		t.Errorf("foreign question: err = %v, want ErrUnknownQuestion", err)
	}
	if _, err := svc.RecordAnswer(ctx, attempt.ID, 7, 1, 2); !errors.Is(err, util.ErrPermissionDenied) {
		t.Errorf("other student: err = %v, want ErrPermissionDenied", err)
	}
}

func TestRecordAnswerAfterDeadline(t *testing.T) {
	exam := testExam(3)
	svc, attempts, submissions, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, 1, 1); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	// Move past the deadline; the late write must be rejected and the
	// attempt auto-submitted.
	svc.Now = func() time.Time { return sessionNow.Add(46 * time.Minute) }

	if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, 2, 1); !errors.Is(err, util.ErrSessionClosed) {
		t.Fatalf("late RecordAnswer: err = %v, want ErrSessionClosed", err)
	}
	if got := attempts.status(t, attempt.ID); got != model.AttemptGraded {
		t.Errorf("status after expiry = %v, want graded", got)
	}

	submission, err := submissions.FindByAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("expected auto-submitted submission: %v", err)
	}
	if submission.CorrectAnswers != 1 {
		t.Errorf("CorrectAnswers = %d, want 1 (late answer must not count)", submission.CorrectAnswers)
	}
}

func TestSubmitAttemptGrades(t *testing.T) {
	exam := testExam(25)
	svc, attempts, _, listener := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	// 19 of 25 correct at threshold 70 is 76.0, a pass.
	for i, q := range exam.Questions {
		option := q.CorrectOption
		if i >= 19 {
			option = q.CorrectOption%model.NumChoices + 1
		}
		if _, err := svc.RecordAnswer(ctx, attempt.ID, 42, q.ID, option); err != nil {
			t.Fatalf("RecordAnswer(%d): %v", q.ID, err)
		}
	}

	submission, err := svc.SubmitAttempt(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if submission.Score != 76.0 {
		t.Errorf("Score = %v, want 76.0", submission.Score)
	}
	if submission.Result != model.ResultPassed {
		t.Errorf("Result = %v, want Passed", submission.Result)
	}
	if got := attempts.status(t, attempt.ID); got != model.AttemptGraded {
		t.Errorf("status = %v, want graded", got)
	}
	if listener.count() != 1 {
		t.Errorf("listener calls = %d, want 1", listener.count())
	}
	if cached := attempts.CachedAnswers(ctx, attempt.ID); cached != nil {
		t.Errorf("autosave cache not dropped: %v", cached)
	}
}

func TestSubmitAttemptIdempotent(t *testing.T) {
	exam := testExam(4)
	svc, _, submissions, listener := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	first, err := svc.SubmitAttempt(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	second, err := svc.SubmitAttempt(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("repeated SubmitAttempt: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated submit returned a different submission: %s vs %s", first.ID, second.ID)
	}
	if submissions.count() != 1 {
		t.Errorf("submission count = %d, want 1", submissions.count())
	}
	if listener.count() != 1 {
		t.Errorf("listener calls = %d, want 1", listener.count())
	}
}

func TestSubmitAttemptConcurrent(t *testing.T) {
	exam := testExam(10)
	svc, _, submissions, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	const callers = 8
	results := make(chan string, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			submission, err := svc.SubmitAttempt(ctx, attempt.ID, 42)
			if err != nil {
				errs <- err
				return
			}
			results <- submission.ID
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent SubmitAttempt: %v", err)
	}
	if submissions.count() != 1 {
		t.Fatalf("submission count = %d, want exactly 1", submissions.count())
	}
	var firstID string
	for id := range results {
		if firstID == "" {
			firstID = id
			continue
		}
		if id != firstID {
			t.Errorf("callers saw different submissions: %s vs %s", firstID, id)
		}
	}
}

func TestSubmitAbandonedAttempt(t *testing.T) {
	exam := testExam(3)
	svc, _, _, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if _, err := svc.AbandonExamAttempts(ctx, exam.ID); err != nil {
		t.Fatalf("AbandonExamAttempts: %v", err)
	}

	if _, err := svc.SubmitAttempt(ctx, attempt.ID, 42); !errors.Is(err, util.ErrInvalidStateTransition) {
		t.Fatalf("submit after abandon: err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestSubmitWithCorruptKeyLeavesSubmitting(t *testing.T) {
	exam := testExam(3)
	exam.Questions[1].CorrectOption = 9
	svc, attempts, submissions, listener := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	if _, err := svc.SubmitAttempt(ctx, attempt.ID, 42); !errors.Is(err, util.ErrGradingInternal) {
		t.Fatalf("SubmitAttempt: err = %v, want ErrGradingInternal", err)
	}
	if got := attempts.status(t, attempt.ID); got != model.AttemptSubmitting {
		t.Errorf("status = %v, want submitting for operator retry", got)
	}
	if submissions.count() != 0 {
		t.Errorf("submission count = %d, want 0", submissions.count())
	}
	if listener.count() != 0 {
		t.Errorf("listener calls = %d, want 0", listener.count())
	}

	// GetSubmission reports the blocked grading instead of a score.
	if _, err := svc.GetSubmission(ctx, attempt.ID, 42); !errors.Is(err, util.ErrGradingInternal) {
		t.Errorf("GetSubmission: err = %v, want ErrGradingInternal", err)
	}

	// Once the key is repaired, re-submitting completes the grading.
	exam.Questions[1].CorrectOption = 1
	submission, err := svc.SubmitAttempt(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("SubmitAttempt after repair: %v", err)
	}
	if submission.TotalQuestions != 3 {
		t.Errorf("TotalQuestions = %d, want 3", submission.TotalQuestions)
	}
}

func TestProcessExpiredAttempts(t *testing.T) {
	exam := testExam(3)
	svc, attempts, submissions, _ := newTestSession(exam)
	ctx := context.Background()

	expired, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	fresh, err := svc.StartAttempt(ctx, exam.PublicID, 43)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	// Only the first attempt's deadline has passed.
	attempts.mu.Lock()
	attempts.attempts[expired.ID].Deadline = sessionNow.Add(-time.Minute)
	attempts.mu.Unlock()

	if err := svc.ProcessExpiredAttempts(ctx); err != nil {
		t.Fatalf("ProcessExpiredAttempts: %v", err)
	}

	if got := attempts.status(t, expired.ID); got != model.AttemptGraded {
		t.Errorf("expired attempt status = %v, want graded", got)
	}
	if got := attempts.status(t, fresh.ID); got != model.AttemptInProgress {
		t.Errorf("fresh attempt status = %v, want in_progress", got)
	}
	submission, err := submissions.FindByAttempt(expired.ID)
	if err != nil {
		t.Fatalf("expected submission for expired attempt: %v", err)
	}
	if submission.Score != 0.0 {
		t.Errorf("Score = %v, want 0.0 for an unanswered sheet", submission.Score)
	}
}

func TestCheckExpiry(t *testing.T) {
	exam := testExam(3)
	svc, attempts, _, _ := newTestSession(exam)
	ctx := context.Background()

	attempt, err := svc.StartAttempt(ctx, exam.PublicID, 42)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	remaining, expired, err := svc.CheckExpiry(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("CheckExpiry: %v", err)
	}
	if expired {
		t.Error("expired = true for a live session")
	}
	if remaining != 45*time.Minute {
		t.Errorf("remaining = %v, want 45m", remaining)
	}

	svc.Now = func() time.Time { return sessionNow.Add(time.Hour) }
	remaining, expired, err = svc.CheckExpiry(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("CheckExpiry after deadline: %v", err)
	}
	if !expired || remaining != 0 {
		t.Errorf("after deadline: remaining = %v, expired = %v; want 0, true", remaining, expired)
	}
	if got := attempts.status(t, attempt.ID); got != model.AttemptGraded {
		t.Errorf("status = %v, want graded after expiry observation", got)
	}
}

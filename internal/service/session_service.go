package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/util"
	"academix_backend/pkg/logger"
	"academix_backend/pkg/monitoring"
	"context"
	"time"

	"go.uber.org/zap"
)

// AttemptStore is the durable-storage collaborator for attempt sessions. Its
// ConditionalTransition is the atomic compare-and-set the state machine
// relies on: in a multi-process deployment no in-memory lock can guard the
// in_progress -> submitting edge, the database row does.
type AttemptStore interface {
	Create(attempt *model.AttemptSession) error
	FindByID(id string) (*model.AttemptSession, error)
	FindByStudentAndExam(studentID, examID uint) (*model.AttemptSession, error)
	SaveAnswers(ctx context.Context, attempt *model.AttemptSession) error
	CachedAnswers(ctx context.Context, attemptID string) map[uint]int
	DropCachedAnswers(ctx context.Context, attemptID string)
	ConditionalTransition(id string, from, to model.AttemptStatus) (bool, error)
	MarkExpired(id string) error
	ListExpiredInProgress(now time.Time, limit int) ([]model.AttemptSession, error)
	AbandonByExam(examID uint) ([]model.AttemptSession, error)
}

// ExamCatalog hands out exam definitions including their answer keys.
type ExamCatalog interface {
	FindByID(id uint) (*model.Exam, error)
	FindByPublicID(publicID string) (*model.Exam, error)
}

// SubmissionStore persists graded submissions. Create must reject a second
// submission for the same attempt (unique index), which backstops the CAS.
type SubmissionStore interface {
	Create(submission *model.Submission) error
	FindByAttempt(attemptID string) (*model.Submission, error)
	FindByStudentAndExam(studentID, examID uint) (*model.Submission, error)
}

// GradedListener is notified after a submission is recorded. Listener
// failures never affect the submission; they handle their own retries.
type GradedListener interface {
	SubmissionGraded(ctx context.Context, submission *model.Submission, exam *model.Exam)
}

// SessionService drives the attempt lifecycle:
//
//	in_progress -> submitting -> graded
//	          \-> abandoned (exam cancelled)
//
// Expiry is not a separate terminal state: a run-out clock funnels the
// attempt through the same submitting -> graded path, flagged as expired.
type SessionService struct {
	Attempts    AttemptStore
	Exams       ExamCatalog
	Submissions SubmissionStore
	Listeners   []GradedListener

	// Now is swapped out in tests.
	Now func() time.Time

	// How long a losing submitter waits for the winner's submission before
	// taking over grading itself.
	SubmitWait   time.Duration
	PollInterval time.Duration
}

func NewSessionService(attempts AttemptStore, exams ExamCatalog, submissions SubmissionStore, listeners ...GradedListener) *SessionService {
	return &SessionService{
		Attempts:     attempts,
		Exams:        exams,
		Submissions:  submissions,
		Listeners:    listeners,
		Now:          time.Now,
		SubmitWait:   2 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// StartAttempt opens a session for a student on an exam identified by its
// public id. Re-entry is a resume: an unfinished session for the same
// (student, exam) pair is returned as-is, with its ledger intact.
func (s *SessionService) StartAttempt(ctx context.Context, examPublicID string, studentID uint) (*model.AttemptSession, error) {
	exam, err := s.Exams.FindByPublicID(examPublicID)
	if err != nil {
		return nil, util.ErrExamNotFound
	}

	now := s.Now()
	switch model.ComputeExamStatus(now, exam.StartTime, exam.EndTime, exam.Status) {
	case model.ExamActive:
	case model.ExamCompleted:
		return nil, util.ErrExamWindowClosed
	default:
		return nil, util.ErrExamNotActive
	}

	if existing, err := s.Attempts.FindByStudentAndExam(studentID, exam.ID); err == nil {
		switch existing.Status {
		case model.AttemptInProgress, model.AttemptSubmitting:
			return existing, nil
		case model.AttemptGraded:
			return nil, util.ErrAlreadySubmitted
		default:
			return nil, util.ErrSessionClosed
		}
	}

	attempt := &model.AttemptSession{
		ExamID:    exam.ID,
		StudentID: studentID,
		Status:    model.AttemptInProgress,
		StartedAt: now,
		Deadline:  NewSessionClock(now, time.Duration(exam.DurationMinutes)*time.Minute).Deadline(),
	}
	if err := attempt.EncodeAnswers(map[uint]int{}); err != nil {
		return nil, err
	}
	if err := s.Attempts.Create(attempt); err != nil {
		return nil, err
	}
	monitoring.AttemptsStarted.Inc()
	return attempt, nil
}

// RecordAnswer writes one ledger entry. Observing an expired clock here
// closes the session first: the answer is rejected and the attempt is routed
// into grading, so no mutation can slip in past the deadline.
func (s *SessionService) RecordAnswer(ctx context.Context, attemptID string, studentID uint, questionID uint, option int) (*model.AttemptSession, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return nil, util.ErrAttemptNotFound
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrSessionClosed
	}

	now := s.Now()
	if ClockFromDeadline(attempt.Deadline).HasExpired(now) {
		if _, err := s.closeExpired(ctx, attempt); err != nil {
			logger.Log.Error("auto-submit on expiry failed",
				zap.String("attemptId", attempt.ID), zap.Error(err))
		}
		return nil, util.ErrSessionClosed
	}

	exam, err := s.Exams.FindByID(attempt.ExamID)
	if err != nil {
		return nil, util.ErrExamNotFound
	}

	ledger, err := s.buildLedger(ctx, attempt, exam)
	if err != nil {
		return nil, err
	}
	if err := ledger.SetAnswer(questionID, option); err != nil {
		return nil, err
	}

	if err := attempt.EncodeAnswers(ledger.Snapshot()); err != nil {
		return nil, err
	}
	if err := s.Attempts.SaveAnswers(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// SubmitAttempt finalizes a session and returns its submission. The call is
// idempotent: once graded, every caller gets the same submission back, and
// concurrent submits (double click, or manual submit racing the expiry sweep)
// are resolved by the conditional status write so only one grading run
// creates the record.
func (s *SessionService) SubmitAttempt(ctx context.Context, attemptID string, studentID uint) (*model.Submission, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return nil, util.ErrAttemptNotFound
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}

	switch attempt.Status {
	case model.AttemptGraded:
		return s.Submissions.FindByAttempt(attempt.ID)
	case model.AttemptAbandoned:
		return nil, util.ErrInvalidStateTransition
	case model.AttemptSubmitting:
		// A previous run owns (or failed) the grading; join it.
		return s.joinSubmitting(ctx, attempt)
	}

	expired := ClockFromDeadline(attempt.Deadline).HasExpired(s.Now())

	ok, err := s.Attempts.ConditionalTransition(attempt.ID, model.AttemptInProgress, model.AttemptSubmitting)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; whoever won either graded already or is about to.
		current, err := s.Attempts.FindByID(attempt.ID)
		if err != nil {
			return nil, util.ErrAttemptNotFound
		}
		switch current.Status {
		case model.AttemptGraded:
			return s.Submissions.FindByAttempt(current.ID)
		case model.AttemptSubmitting:
			return s.joinSubmitting(ctx, current)
		default:
			return nil, util.ErrInvalidStateTransition
		}
	}

	if expired {
		if err := s.Attempts.MarkExpired(attempt.ID); err != nil {
			logger.Log.Warn("failed to flag expired attempt", zap.String("attemptId", attempt.ID), zap.Error(err))
		}
		attempt.Expired = true
	}
	return s.gradeAndRecord(ctx, attempt)
}

// CheckExpiry reports the remaining time for an attempt and, when the clock
// has run out on an in-progress session, performs the auto-submit.
func (s *SessionService) CheckExpiry(ctx context.Context, attemptID string, studentID uint) (time.Duration, bool, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return 0, false, util.ErrAttemptNotFound
	}
	if attempt.StudentID != studentID {
		return 0, false, util.ErrPermissionDenied
	}

	now := s.Now()
	clock := ClockFromDeadline(attempt.Deadline)
	if attempt.Status == model.AttemptInProgress && clock.HasExpired(now) {
		if _, err := s.closeExpired(ctx, attempt); err != nil {
			return 0, true, err
		}
		return 0, true, nil
	}
	return clock.Remaining(now), clock.HasExpired(now), nil
}

// GetSubmission returns the graded result for an attempt. A session stuck in
// submitting (grading blocked on a corrupt answer key) reports
// ErrGradingInternal so callers can show "result pending" instead of a score.
func (s *SessionService) GetSubmission(ctx context.Context, attemptID string, studentID uint) (*model.Submission, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return nil, util.ErrAttemptNotFound
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}

	if submission, err := s.Submissions.FindByAttempt(attempt.ID); err == nil {
		return submission, nil
	}
	if attempt.Status == model.AttemptSubmitting {
		return nil, util.ErrGradingInternal
	}
	return nil, util.ErrInvalidStateTransition
}

// ProcessExpiredAttempts is the periodic sweep that auto-submits sessions
// whose deadline passed without the student coming back. Errors are logged
// per attempt; one bad session does not stall the sweep.
func (s *SessionService) ProcessExpiredAttempts(ctx context.Context) error {
	attempts, err := s.Attempts.ListExpiredInProgress(s.Now(), 100)
	if err != nil {
		return err
	}
	for i := range attempts {
		attempt := attempts[i]
		if _, err := s.closeExpired(ctx, &attempt); err != nil {
			logger.Log.Error("expiry sweep: grading failed",
				zap.String("attemptId", attempt.ID), zap.Error(err))
		}
	}
	return nil
}

// AbandonExamAttempts terminates every unfinished attempt of a cancelled
// exam. No submission is produced for abandoned sessions.
func (s *SessionService) AbandonExamAttempts(ctx context.Context, examID uint) ([]model.AttemptSession, error) {
	attempts, err := s.Attempts.AbandonByExam(examID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		s.Attempts.DropCachedAnswers(ctx, attempts[i].ID)
	}
	return attempts, nil
}

// closeExpired routes an expired in-progress attempt through the normal
// submitting transition. The CAS makes it safe against a concurrent manual
// submit: whichever side wins, one grading run happens.
func (s *SessionService) closeExpired(ctx context.Context, attempt *model.AttemptSession) (*model.Submission, error) {
	ok, err := s.Attempts.ConditionalTransition(attempt.ID, model.AttemptInProgress, model.AttemptSubmitting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.Submissions.FindByAttempt(attempt.ID)
	}
	if err := s.Attempts.MarkExpired(attempt.ID); err != nil {
		logger.Log.Warn("failed to flag expired attempt", zap.String("attemptId", attempt.ID), zap.Error(err))
	}
	attempt.Expired = true
	monitoring.AttemptsExpired.Inc()
	return s.gradeAndRecord(ctx, attempt)
}

// joinSubmitting is the loser side of a submit race, or a retry of a session
// whose previous grading run failed. It waits briefly for the winner's
// submission; if none appears it re-runs grading itself, which is safe
// because grading is pure and the submission store rejects duplicates.
func (s *SessionService) joinSubmitting(ctx context.Context, attempt *model.AttemptSession) (*model.Submission, error) {
	deadline := time.Now().Add(s.SubmitWait)
	for {
		if submission, err := s.Submissions.FindByAttempt(attempt.ID); err == nil {
			return submission, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(s.PollInterval)
	}
	return s.gradeAndRecord(ctx, attempt)
}

// gradeAndRecord runs the grading engine for an attempt already in
// submitting and records the submission. On an integrity error the session
// stays in submitting for operator intervention; no score is ever invented.
func (s *SessionService) gradeAndRecord(ctx context.Context, attempt *model.AttemptSession) (*model.Submission, error) {
	exam, err := s.Exams.FindByID(attempt.ExamID)
	if err != nil {
		logger.Log.Error("grading blocked: exam definition unavailable",
			zap.String("attemptId", attempt.ID), zap.Uint("examId", attempt.ExamID), zap.Error(err))
		return nil, util.ErrGradingInternal
	}

	ledger, err := s.buildLedger(ctx, attempt, exam)
	if err != nil {
		return nil, util.ErrGradingInternal
	}

	result, err := Grade(ledger, exam.Questions, exam.PassThreshold)
	if err != nil {
		logger.Log.Error("grading failed, session left in submitting",
			zap.String("attemptId", attempt.ID), zap.Uint("examId", exam.ID), zap.Error(err))
		return nil, err
	}

	finalAnswers := ledger.Snapshot()
	submission := &model.Submission{
		AttemptID:      attempt.ID,
		ExamID:         exam.ID,
		StudentID:      attempt.StudentID,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		CorrectAnswers: result.CorrectAnswers,
		Result:         result.Result,
		SubmittedAt:    s.Now(),
	}
	submission.ID = model.GenerateUUID()
	if err := encodeSubmissionAnswers(submission, finalAnswers); err != nil {
		return nil, err
	}

	if err := s.Submissions.Create(submission); err != nil {
		// Unique index on attempt id: someone else recorded it first.
		if existing, findErr := s.Submissions.FindByAttempt(attempt.ID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}

	if ok, err := s.Attempts.ConditionalTransition(attempt.ID, model.AttemptSubmitting, model.AttemptGraded); err != nil || !ok {
		logger.Log.Warn("submission recorded but status flip failed",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}
	s.Attempts.DropCachedAnswers(ctx, attempt.ID)
	monitoring.SubmissionsGraded.WithLabelValues(string(result.Result)).Inc()

	for _, listener := range s.Listeners {
		listener.SubmissionGraded(ctx, submission, exam)
	}
	return submission, nil
}

// buildLedger reconstructs the attempt's ledger from the persisted snapshot
// merged with the redis autosave, newest write winning per question.
func (s *SessionService) buildLedger(ctx context.Context, attempt *model.AttemptSession, exam *model.Exam) (*AnswerLedger, error) {
	ledger := NewAnswerLedger(exam.Questions)
	persisted, err := attempt.DecodeAnswers()
	if err != nil {
		return nil, err
	}
	ledger.Restore(persisted)
	if cached := s.Attempts.CachedAnswers(ctx, attempt.ID); cached != nil {
		ledger.Restore(cached)
	}
	return ledger, nil
}

func encodeSubmissionAnswers(submission *model.Submission, answers map[uint]int) error {
	carrier := model.AttemptSession{}
	if err := carrier.EncodeAnswers(answers); err != nil {
		return err
	}
	submission.Answers = carrier.Answers
	return nil
}

package util

import "errors"

// Validation errors: caller mistakes, surfaced immediately, no retry.
var (
	ErrInvalidOption          = errors.New("selected option must be between 1 and 4")
	ErrUnknownQuestion        = errors.New("question does not belong to this exam")
	ErrInvalidStateTransition = errors.New("invalid attempt state transition")
)

// Timing errors: state/time mismatches.
var (
	ErrExamNotActive    = errors.New("exam is not active")
	ErrExamWindowClosed = errors.New("exam window has closed")
	ErrSessionClosed    = errors.New("attempt session is closed")
)

// Integrity errors: corrupted exam configuration. Grading never returns a
// partial or default score when one of these occurs.
var (
	ErrMalformedExam   = errors.New("exam has no gradable questions")
	ErrGradingInternal = errors.New("grading failed: answer key missing or corrupt")
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAlreadySubmitted  = errors.New("exam already submitted")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrExamLocked          = errors.New("exam has attempts and can no longer be edited")
	ErrCertificateExists   = errors.New("certificate already issued for this exam")
	ErrCertificateNotFound = errors.New("certificate not found")
)

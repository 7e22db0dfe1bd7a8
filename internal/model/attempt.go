package model

import (
	"encoding/json"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitting AttemptStatus = "submitting"
	AttemptGraded     AttemptStatus = "graded"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AttemptSession is one student's timed run through an exam. The answers
// column is the persisted ledger snapshot (questionId -> selected option);
// Deadline is StartedAt plus the exam duration and is the sole source of
// truth for expiry, so a restarted process recomputes nothing.
// swagger:model AttemptSession
type AttemptSession struct {
	UUIDBase
	ExamID    uint            `gorm:"index;type:bigint unsigned;uniqueIndex:idx_attempt_student_exam" json:"examId"`
	StudentID uint            `gorm:"type:bigint unsigned;uniqueIndex:idx_attempt_student_exam" json:"studentId"`
	Status    AttemptStatus   `gorm:"size:20;default:'in_progress';index" json:"status"`
	StartedAt time.Time       `gorm:"not null" json:"startedAt"`
	Deadline  time.Time       `gorm:"not null;index" json:"deadline"`
	Answers   json.RawMessage `gorm:"type:json" json:"answers"`
	Expired   bool            `gorm:"default:false" json:"expired"` // set when the clock, not the student, closed the session
}

func (AttemptSession) TableName() string {
	return "attempt_sessions"
}

// DecodeAnswers unmarshals the persisted ledger snapshot. A nil column is an
// empty ledger, not an error.
func (a *AttemptSession) DecodeAnswers() (map[uint]int, error) {
	answers := make(map[uint]int)
	if len(a.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// EncodeAnswers replaces the persisted ledger snapshot.
func (a *AttemptSession) EncodeAnswers(answers map[uint]int) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	a.Answers = data
	return nil
}

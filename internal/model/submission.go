package model

import (
	"encoding/json"
	"time"
)

type SubmissionResult string

const (
	ResultPassed SubmissionResult = "Passed"
	ResultFailed SubmissionResult = "Failed"
)

// Submission is the immutable graded record of an attempt. Created exactly
// once per AttemptSession, at the moment grading completes.
// swagger:model Submission
type Submission struct {
	UUIDBase
	AttemptID      string           `gorm:"size:36;uniqueIndex;not null" json:"attemptId"`
	ExamID         uint             `gorm:"index;type:bigint unsigned" json:"examId"`
	StudentID      uint             `gorm:"index;type:bigint unsigned" json:"studentId"`
	Score          float64          `gorm:"not null" json:"score"` // 0-100, one decimal
	TotalQuestions int              `gorm:"not null" json:"totalQuestions"`
	CorrectAnswers int              `gorm:"not null" json:"correctAnswers"`
	Result         SubmissionResult `gorm:"size:10;not null" json:"result"`
	SubmittedAt    time.Time        `gorm:"not null" json:"submittedAt"`
	Answers        json.RawMessage  `gorm:"type:json" json:"answers"` // final ledger copy
}

func (Submission) TableName() string {
	return "submissions"
}

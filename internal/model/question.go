package model

import "encoding/json"

// NumChoices is fixed: every question carries exactly four choices and one
// correct option numbered 1..4.
const NumChoices = 4

// swagger:model Question
type Question struct {
	BaseModel
	ExamID        uint            `gorm:"index;type:bigint unsigned" json:"examId"`
	Content       string          `gorm:"type:text;not null" json:"content"`
	Choices       json.RawMessage `gorm:"type:json" json:"choices"`        // JSON array of 4 strings
	CorrectOption int             `gorm:"not null" json:"-"`               // 1-indexed, never serialized to students
	Order         int             `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

// HasValidKey reports whether the stored answer key is usable for grading.
func (q *Question) HasValidKey() bool {
	return q.CorrectOption >= 1 && q.CorrectOption <= NumChoices
}

package model

import "time"

type ExamStatus string

const (
	ExamScheduled ExamStatus = "scheduled"
	ExamActive    ExamStatus = "active"
	ExamCompleted ExamStatus = "completed"
	ExamCancelled ExamStatus = "cancelled"
)

// Exam is a timed multiple-choice exam attached to a course. Once a student
// has started an attempt against it the definition is locked (enforced by the
// session state machine, not here).
// swagger:model Exam
type Exam struct {
	BaseModel
	PublicID        string     `gorm:"size:10;uniqueIndex;not null" json:"publicId"` // E + 6 digits
	Title           string     `gorm:"size:255;not null" json:"title"`
	CourseID        uint       `gorm:"index;type:bigint unsigned" json:"courseId"`
	Course          *Course    `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	DurationMinutes int        `gorm:"not null" json:"durationMinutes"`
	PassThreshold   float64    `gorm:"not null" json:"passThreshold"` // percentage, 0-100
	StartTime       time.Time  `gorm:"not null" json:"startTime"`
	EndTime         time.Time  `gorm:"not null" json:"endTime"`
	Status          ExamStatus `gorm:"size:20;default:'scheduled';index" json:"status"`
	Questions       []Question `gorm:"foreignKey:ExamID" json:"questions,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// ComputeExamStatus derives the effective status from the schedule window.
// Cancelled is sticky; a past end time always means completed.
func ComputeExamStatus(now time.Time, startTime, endTime time.Time, current ExamStatus) ExamStatus {
	if current == ExamCancelled {
		return ExamCancelled
	}
	if now.After(endTime) {
		return ExamCompleted
	}
	if !now.Before(startTime) && !now.After(endTime) {
		return ExamActive
	}
	return current
}

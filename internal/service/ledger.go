package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/util"
)

// AnswerLedger is the question -> selected-option mapping for one in-progress
// attempt. Writes overwrite; a question is either unanswered or holds exactly
// one option in 1..4. The ledger only accepts questions belonging to the exam
// it was built from.
type AnswerLedger struct {
	questions map[uint]struct{}
	answers   map[uint]int
}

func NewAnswerLedger(questions []model.Question) *AnswerLedger {
	qs := make(map[uint]struct{}, len(questions))
	for _, q := range questions {
		qs[q.ID] = struct{}{}
	}
	return &AnswerLedger{
		questions: qs,
		answers:   make(map[uint]int),
	}
}

// Restore loads persisted answers back into the ledger. Entries for questions
// outside the exam or with out-of-range options are dropped rather than
// trusted; the durable snapshot is not a validation boundary.
func (l *AnswerLedger) Restore(answers map[uint]int) {
	for questionID, option := range answers {
		if _, ok := l.questions[questionID]; !ok {
			continue
		}
		if option < 1 || option > model.NumChoices {
			continue
		}
		l.answers[questionID] = option
	}
}

// SetAnswer records or overwrites the answer for a question.
func (l *AnswerLedger) SetAnswer(questionID uint, option int) error {
	if option < 1 || option > model.NumChoices {
		return util.ErrInvalidOption
	}
	if _, ok := l.questions[questionID]; !ok {
		return util.ErrUnknownQuestion
	}
	l.answers[questionID] = option
	return nil
}

// Answer returns the selected option for a question; ok is false when the
// question is unanswered.
func (l *AnswerLedger) Answer(questionID uint) (int, bool) {
	option, ok := l.answers[questionID]
	return option, ok
}

func (l *AnswerLedger) AnsweredCount() int {
	return len(l.answers)
}

// Snapshot copies the ledger for persistence or grading. Mutating the copy
// does not touch the ledger.
func (l *AnswerLedger) Snapshot() map[uint]int {
	out := make(map[uint]int, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}

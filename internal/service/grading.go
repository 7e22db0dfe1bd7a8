package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/util"
	"math"
)

// GradeResult is the outcome of grading one finalized ledger.
type GradeResult struct {
	Score          float64
	TotalQuestions int
	CorrectAnswers int
	Result         model.SubmissionResult
}

// Grade scores a finalized ledger against the exam's answer key. It is a pure
// function: the same ledger, questions and threshold always produce an
// identical result, which is what makes the submit path idempotent.
//
// An unanswered question never matches. Zero questions fail with
// ErrMalformedExam, a correctOption outside 1..4 fails with
// ErrGradingInternal; in neither case is a score produced.
func Grade(ledger *AnswerLedger, questions []model.Question, passThreshold float64) (*GradeResult, error) {
	total := len(questions)
	if total == 0 {
		return nil, util.ErrMalformedExam
	}

	correct := 0
	for i := range questions {
		q := &questions[i]
		if !q.HasValidKey() {
			return nil, util.ErrGradingInternal
		}
		if option, ok := ledger.Answer(q.ID); ok && option == q.CorrectOption {
			correct++
		}
	}

	score := roundScore(100 * float64(correct) / float64(total))

	result := model.ResultFailed
	if score >= passThreshold {
		result = model.ResultPassed
	}

	return &GradeResult{
		Score:          score,
		TotalQuestions: total,
		CorrectAnswers: correct,
		Result:         result,
	}, nil
}

// roundScore keeps one decimal place, rounding half away from zero.
func roundScore(v float64) float64 {
	return math.Round(v*10) / 10
}

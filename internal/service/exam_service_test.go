package service

import (
	"strings"
	"testing"
	"time"
)

func validCreateRequest() *CreateExamRequest {
	start := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	return &CreateExamRequest{
		Title:           "Algorithms Midterm",
		CourseID:        7,
		DurationMinutes: 60,
		PassThreshold:   70,
		StartTime:       start,
		EndTime:         start.Add(3 * time.Hour),
		Questions: []QuestionInput{
			{Content: "Q1", Choices: []string{"a", "b", "c", "d"}, CorrectOption: 1},
			{Content: "Q2", Choices: []string{"a", "b", "c", "d"}, CorrectOption: 4},
		},
	}
}

func TestValidateExamRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateExamRequest)
		wantErr string
	}{
		{"valid", func(r *CreateExamRequest) {}, ""},
		{"empty title", func(r *CreateExamRequest) { r.Title = "  " }, "title"},
		{"zero duration", func(r *CreateExamRequest) { r.DurationMinutes = 0 }, "durationMinutes"},
		{"threshold above 100", func(r *CreateExamRequest) { r.PassThreshold = 101 }, "passThreshold"},
		{"threshold negative", func(r *CreateExamRequest) { r.PassThreshold = -1 }, "passThreshold"},
		{"end before start", func(r *CreateExamRequest) { r.EndTime = r.StartTime.Add(-time.Hour) }, "endTime"},
		{"duration longer than window", func(r *CreateExamRequest) { r.DurationMinutes = 200 }, "window"},
		{"no questions", func(r *CreateExamRequest) { r.Questions = nil }, "question"},
		{"three choices", func(r *CreateExamRequest) { r.Questions[0].Choices = []string{"a", "b", "c"} }, "choices"},
		{"five choices", func(r *CreateExamRequest) {
			r.Questions[0].Choices = []string{"a", "b", "c", "d", "e"}
		}, "choices"},
		{"correct option zero", func(r *CreateExamRequest) { r.Questions[1].CorrectOption = 0 }, "correctOption"},
		{"correct option above four", func(r *CreateExamRequest) { r.Questions[1].CorrectOption = 5 }, "correctOption"},
	}

	svc := &ExamService{MaxQuestions: 100, Now: time.Now}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(req)

			err := svc.validateRequest(req)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validateRequest: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateExamRequestQuestionLimit(t *testing.T) {
	svc := &ExamService{MaxQuestions: 2, Now: time.Now}
	req := validCreateRequest()
	req.Questions = append(req.Questions, QuestionInput{
		Content: "Q3", Choices: []string{"a", "b", "c", "d"}, CorrectOption: 2,
	})

	err := svc.validateRequest(req)
	if err == nil || !strings.Contains(err.Error(), "too many questions") {
		t.Fatalf("err = %v, want question limit error", err)
	}
}

func TestBuildQuestionsPreservesOrder(t *testing.T) {
	req := validCreateRequest()
	questions, err := buildQuestions(9, req.Questions)
	if err != nil {
		t.Fatalf("buildQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("len = %d, want 2", len(questions))
	}
	for i, q := range questions {
		if q.ExamID != 9 {
			t.Errorf("question %d ExamID = %d, want 9", i, q.ExamID)
		}
		if q.Order != i+1 {
			t.Errorf("question %d Order = %d, want %d", i, q.Order, i+1)
		}
	}
	if questions[1].CorrectOption != 4 {
		t.Errorf("CorrectOption = %d, want 4", questions[1].CorrectOption)
	}
}

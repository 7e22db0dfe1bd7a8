package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/repository"
	"academix_backend/internal/util"
	"academix_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const publicIDRetries = 5

type ExamService struct {
	Exams         *repository.ExamRepository
	Courses       *repository.CourseRepository
	Attempts      *repository.AttemptRepository
	Submissions   *repository.SubmissionRepository
	Notifications *repository.NotificationRepository
	Users         *repository.UserRepository
	Sessions      *SessionService

	MaxQuestions int
	Now          func() time.Time
}

func NewExamService(exams *repository.ExamRepository, courses *repository.CourseRepository,
	attempts *repository.AttemptRepository, submissions *repository.SubmissionRepository,
	notifications *repository.NotificationRepository, users *repository.UserRepository,
	sessions *SessionService, maxQuestions int) *ExamService {
	if maxQuestions <= 0 {
		maxQuestions = 100
	}
	return &ExamService{
		Exams:         exams,
		Courses:       courses,
		Attempts:      attempts,
		Submissions:   submissions,
		Notifications: notifications,
		Users:         users,
		Sessions:      sessions,
		MaxQuestions:  maxQuestions,
		Now:           time.Now,
	}
}

type QuestionInput struct {
	Content       string   `json:"content" binding:"required"`
	Choices       []string `json:"choices" binding:"required"`
	CorrectOption int      `json:"correctOption" binding:"required"`
}

type CreateExamRequest struct {
	Title           string          `json:"title" binding:"required"`
	CourseID        uint            `json:"courseId" binding:"required"`
	DurationMinutes int             `json:"durationMinutes" binding:"required"`
	PassThreshold   float64         `json:"passThreshold" binding:"required"`
	StartTime       time.Time       `json:"startTime" binding:"required"`
	EndTime         time.Time       `json:"endTime" binding:"required"`
	Questions       []QuestionInput `json:"questions" binding:"required"`
}

type UpdateExamRequest struct {
	Title           string          `json:"title"`
	DurationMinutes int             `json:"durationMinutes"`
	PassThreshold   *float64        `json:"passThreshold"`
	StartTime       *time.Time      `json:"startTime"`
	EndTime         *time.Time      `json:"endTime"`
	Questions       []QuestionInput `json:"questions"`
}

func (s *ExamService) validateRequest(req *CreateExamRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("durationMinutes must be positive")
	}
	if req.PassThreshold < 0 || req.PassThreshold > 100 {
		return fmt.Errorf("passThreshold must be between 0 and 100")
	}
	if !req.EndTime.After(req.StartTime) {
		return fmt.Errorf("endTime must be after startTime")
	}
	window := req.EndTime.Sub(req.StartTime)
	if time.Duration(req.DurationMinutes)*time.Minute > window {
		return fmt.Errorf("duration exceeds the schedule window")
	}
	if len(req.Questions) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	if len(req.Questions) > s.MaxQuestions {
		return fmt.Errorf("too many questions, limit is %d", s.MaxQuestions)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q.Content) == "" {
			return fmt.Errorf("question %d: content is required", i+1)
		}
		if len(q.Choices) != model.NumChoices {
			return fmt.Errorf("question %d: exactly %d choices are required", i+1, model.NumChoices)
		}
		if q.CorrectOption < 1 || q.CorrectOption > model.NumChoices {
			return fmt.Errorf("question %d: correctOption must be 1-%d", i+1, model.NumChoices)
		}
	}
	return nil
}

func buildQuestions(examID uint, inputs []QuestionInput) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		choices, err := json.Marshal(in.Choices)
		if err != nil {
			return nil, err
		}
		questions = append(questions, model.Question{
			ExamID:        examID,
			Content:       in.Content,
			Choices:       choices,
			CorrectOption: in.CorrectOption,
			Order:         i + 1,
		})
	}
	return questions, nil
}

// CreateExam validates the definition and stores it as scheduled. The public
// id is generated locally and retried on the rare index collision.
func (s *ExamService) CreateExam(ctx context.Context, teacherID uint, req *CreateExamRequest) (*model.Exam, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	course, err := s.Courses.FindByID(req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("course not found")
	}
	if course.TeacherID != teacherID {
		return nil, util.ErrPermissionDenied
	}

	exam := &model.Exam{
		Title:           req.Title,
		CourseID:        req.CourseID,
		DurationMinutes: req.DurationMinutes,
		PassThreshold:   req.PassThreshold,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          model.ComputeExamStatus(s.Now(), req.StartTime, req.EndTime, model.ExamScheduled),
	}

	var createErr error
	for i := 0; i < publicIDRetries; i++ {
		exam.PublicID = util.GeneratePublicID("E")
		if createErr = s.Exams.Create(exam); createErr == nil {
			break
		}
	}
	if createErr != nil {
		return nil, createErr
	}

	questions, err := buildQuestions(exam.ID, req.Questions)
	if err != nil {
		return nil, err
	}
	if err := s.Exams.CreateQuestions(questions); err != nil {
		return nil, err
	}
	exam.Questions = questions
	return exam, nil
}

// UpdateExam rewrites a definition. Locked once any student has started an
// attempt, and once the exam has left scheduled.
func (s *ExamService) UpdateExam(ctx context.Context, teacherID uint, examID uint, req *UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.ownedExam(teacherID, examID)
	if err != nil {
		return nil, err
	}
	if model.ComputeExamStatus(s.Now(), exam.StartTime, exam.EndTime, exam.Status) != model.ExamScheduled {
		return nil, util.ErrExamLocked
	}
	count, err := s.Attempts.CountByExam(examID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, util.ErrExamLocked
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.PassThreshold != nil {
		exam.PassThreshold = *req.PassThreshold
	}
	if req.StartTime != nil {
		exam.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		exam.EndTime = *req.EndTime
	}

	check := CreateExamRequest{
		Title:           exam.Title,
		CourseID:        exam.CourseID,
		DurationMinutes: exam.DurationMinutes,
		PassThreshold:   exam.PassThreshold,
		StartTime:       exam.StartTime,
		EndTime:         exam.EndTime,
		Questions:       req.Questions,
	}
	if req.Questions == nil {
		check.Questions = questionsAsInput(exam.Questions)
	}
	if err := s.validateRequest(&check); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		if err := s.Exams.DeleteQuestionsByExam(exam.ID); err != nil {
			return nil, err
		}
		questions, err := buildQuestions(exam.ID, req.Questions)
		if err != nil {
			return nil, err
		}
		if err := s.Exams.CreateQuestions(questions); err != nil {
			return nil, err
		}
		exam.Questions = questions
	}

	if err := s.Exams.Update(exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func questionsAsInput(questions []model.Question) []QuestionInput {
	inputs := make([]QuestionInput, 0, len(questions))
	for _, q := range questions {
		var choices []string
		_ = json.Unmarshal(q.Choices, &choices)
		inputs = append(inputs, QuestionInput{Content: q.Content, Choices: choices, CorrectOption: q.CorrectOption})
	}
	return inputs
}

// CancelExam cancels the exam, abandons every unfinished attempt and tells
// the affected students. Cancellation is sticky and terminal.
func (s *ExamService) CancelExam(ctx context.Context, teacherID uint, examID uint) error {
	exam, err := s.ownedExam(teacherID, examID)
	if err != nil {
		return err
	}
	if exam.Status == model.ExamCancelled {
		return nil
	}
	if err := s.Exams.UpdateStatus(exam.ID, model.ExamCancelled); err != nil {
		return err
	}

	abandoned, err := s.Sessions.AbandonExamAttempts(ctx, exam.ID)
	if err != nil {
		logger.Log.Error("failed to abandon attempts for cancelled exam",
			zap.Uint("examId", exam.ID), zap.Error(err))
		return err
	}
	for _, attempt := range abandoned {
		notification := &model.Notification{
			UserID:  attempt.StudentID,
			Type:    model.NotifyExamCancelled,
			Title:   "Exam cancelled",
			Message: fmt.Sprintf("The exam %q (%s) was cancelled. Your attempt will not be graded.", exam.Title, exam.PublicID),
		}
		if err := s.Notifications.Create(notification); err != nil {
			logger.Log.Warn("cancel notification failed", zap.Uint("studentId", attempt.StudentID), zap.Error(err))
		}
	}
	logger.Log.Info("exam cancelled",
		zap.Uint("examId", exam.ID), zap.String("publicId", exam.PublicID),
		zap.Int("abandonedAttempts", len(abandoned)))
	return nil
}

// GetExam returns the full definition including answer keys; teacher only.
func (s *ExamService) GetExam(teacherID uint, examID uint) (*model.Exam, error) {
	return s.ownedExam(teacherID, examID)
}

// StudentQuestion is a question as a taking student sees it: no answer key.
type StudentQuestion struct {
	ID      uint            `json:"id"`
	Content string          `json:"content"`
	Choices json.RawMessage `json:"choices"`
	Order   int             `json:"order"`
}

// StudentExamView is the join payload: the definition a student needs to sit
// the exam, with the effective status derived from the schedule window.
type StudentExamView struct {
	PublicID        string            `json:"publicId"`
	Title           string            `json:"title"`
	CourseName      string            `json:"courseName"`
	DurationMinutes int               `json:"durationMinutes"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         time.Time         `json:"endTime"`
	Status          model.ExamStatus  `json:"status"`
	Questions       []StudentQuestion `json:"questions"`
}

// JoinExam resolves a public id into the student-facing view.
func (s *ExamService) JoinExam(publicID string) (*StudentExamView, error) {
	exam, err := s.Exams.FindByPublicID(publicID)
	if err != nil {
		return nil, util.ErrExamNotFound
	}
	view := &StudentExamView{
		PublicID:        exam.PublicID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		StartTime:       exam.StartTime,
		EndTime:         exam.EndTime,
		Status:          model.ComputeExamStatus(s.Now(), exam.StartTime, exam.EndTime, exam.Status),
		Questions:       make([]StudentQuestion, 0, len(exam.Questions)),
	}
	if exam.Course != nil {
		view.CourseName = exam.Course.CourseName
	}
	for _, q := range exam.Questions {
		view.Questions = append(view.Questions, StudentQuestion{
			ID: q.ID, Content: q.Content, Choices: q.Choices, Order: q.Order,
		})
	}
	return view, nil
}

func (s *ExamService) ListByTeacher(teacherID uint, status model.ExamStatus, page, limit int) ([]model.Exam, int64, error) {
	exams, total, err := s.Exams.ListByTeacher(teacherID, status, page, limit)
	if err != nil {
		return nil, 0, err
	}
	now := s.Now()
	for i := range exams {
		exams[i].Status = model.ComputeExamStatus(now, exams[i].StartTime, exams[i].EndTime, exams[i].Status)
	}
	return exams, total, nil
}

// SubmissionRow is one graded submission annotated with the student's name
// for the teacher's results table.
type SubmissionRow struct {
	model.Submission
	StudentName string `json:"studentName"`
}

// ExamResults aggregates the graded submissions of one exam for its teacher.
type ExamResults struct {
	Exam         *model.Exam     `json:"exam"`
	Submissions  []SubmissionRow `json:"submissions"`
	Participants int64           `json:"participants"`
	Graded       int             `json:"graded"`
	Passed       int             `json:"passed"`
	AverageScore float64         `json:"averageScore"`
}

func (s *ExamService) Results(teacherID uint, examID uint) (*ExamResults, error) {
	exam, err := s.ownedExam(teacherID, examID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.Submissions.ListByExam(exam.ID)
	if err != nil {
		return nil, err
	}
	participants, err := s.Attempts.CountByExam(exam.ID)
	if err != nil {
		return nil, err
	}

	studentIDs := make([]uint, 0, len(submissions))
	for _, sub := range submissions {
		studentIDs = append(studentIDs, sub.StudentID)
	}
	names := make(map[uint]string, len(studentIDs))
	if len(studentIDs) > 0 {
		students, err := s.Users.FindByIDs(studentIDs)
		if err != nil {
			return nil, err
		}
		for _, student := range students {
			names[student.ID] = student.Name
		}
	}

	results := &ExamResults{
		Exam:         exam,
		Submissions:  make([]SubmissionRow, 0, len(submissions)),
		Participants: participants,
		Graded:       len(submissions),
	}
	var sum float64
	for _, sub := range submissions {
		sum += sub.Score
		if sub.Result == model.ResultPassed {
			results.Passed++
		}
		results.Submissions = append(results.Submissions, SubmissionRow{
			Submission:  sub,
			StudentName: names[sub.StudentID],
		})
	}
	if len(submissions) > 0 {
		results.AverageScore = sum / float64(len(submissions))
	}
	return results, nil
}

// SyncStatuses is the scheduled sweep that moves stored exam statuses along
// the schedule window: scheduled -> active at start, active -> completed at
// end. Cancelled exams are never touched.
func (s *ExamService) SyncStatuses(ctx context.Context) error {
	exams, err := s.Exams.ListDueForTransition(s.Now())
	if err != nil {
		return err
	}
	now := s.Now()
	for _, exam := range exams {
		next := model.ComputeExamStatus(now, exam.StartTime, exam.EndTime, exam.Status)
		if next == exam.Status {
			continue
		}
		if err := s.Exams.UpdateStatus(exam.ID, next); err != nil {
			logger.Log.Error("exam status sweep failed",
				zap.Uint("examId", exam.ID), zap.Error(err))
			continue
		}
		logger.Log.Info("exam status transition",
			zap.Uint("examId", exam.ID), zap.String("publicId", exam.PublicID),
			zap.String("from", string(exam.Status)), zap.String("to", string(next)))
	}
	return nil
}

func (s *ExamService) ownedExam(teacherID uint, examID uint) (*model.Exam, error) {
	exam, err := s.Exams.FindByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if exam.Course == nil || exam.Course.TeacherID != teacherID {
		return nil, util.ErrPermissionDenied
	}
	return exam, nil
}

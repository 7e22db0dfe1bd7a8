package controller

import (
	"academix_backend/internal/repository"
	"academix_backend/internal/service"
	"academix_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	SessionService *service.SessionService
	Submissions    *repository.SubmissionRepository
}

func NewAttemptController(sessionService *service.SessionService, submissions *repository.SubmissionRepository) *AttemptController {
	return &AttemptController{SessionService: sessionService, Submissions: submissions}
}

type StartAttemptRequest struct {
	ExamPublicID string `json:"examPublicId" binding:"required"`
}

// StartAttempt godoc
// @Summary Start or resume an attempt
// @Description Opens a timed session on an active exam. Calling again while a session is open resumes it with the saved answers.
// @Tags attempts
// @Accept  json
// @Produce  json
// @Param   body body StartAttemptRequest true "exam public id"
// @Success 201 {object} util.Response{data=model.AttemptSession}
// @Failure 404 {object} util.Response "exam not found"
// @Failure 409 {object} util.Response "not active, window closed or already submitted"
// @Security BearerAuth
// @Router /api/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.SessionService.StartAttempt(ctx.Request.Context(), req.ExamPublicID, user.UserID)
	if err != nil {
		attemptError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

type RecordAnswerRequest struct {
	QuestionID uint `json:"questionId" binding:"required"`
	Option     int  `json:"option" binding:"required"`
}

// RecordAnswer godoc
// @Summary Record one answer
// @Description Writes the selected option for a question; a later write for the same question overwrites the earlier one. Rejected once the clock has run out.
// @Tags attempts
// @Accept  json
// @Produce  json
// @Param   id path string true "attempt id"
// @Param   body body RecordAnswerRequest true "question and selected option"
// @Success 200 {object} util.Response{data=model.AttemptSession}
// @Failure 400 {object} util.Response "invalid option or unknown question"
// @Failure 409 {object} util.Response "session closed"
// @Security BearerAuth
// @Router /api/attempts/{id}/answers [put]
func (c *AttemptController) RecordAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req RecordAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.SessionService.RecordAnswer(ctx.Request.Context(), ctx.Param("id"), user.UserID, req.QuestionID, req.Option)
	if err != nil {
		attemptError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// SubmitAttempt godoc
// @Summary Submit an attempt for grading
// @Description Finalizes the session and returns the graded submission. Idempotent: repeated calls return the same submission.
// @Tags attempts
// @Produce  json
// @Param   id path string true "attempt id"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "invalid state"
// @Failure 500 {object} util.Response "grading blocked by a corrupt answer key"
// @Security BearerAuth
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	submission, err := c.SessionService.SubmitAttempt(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		attemptError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}

// Clock godoc
// @Summary Remaining time for an attempt
// @Description Reports milliseconds left on the session clock. Observing an expired clock auto-submits the attempt.
// @Tags attempts
// @Produce  json
// @Param   id path string true "attempt id"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/{id}/clock [get]
func (c *AttemptController) Clock(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	remaining, expired, err := c.SessionService.CheckExpiry(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		attemptError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"remainingMs": remaining.Milliseconds(),
		"expired":     expired,
	})
}

// GetSubmission godoc
// @Summary Graded result of an attempt
// @Tags attempts
// @Produce  json
// @Param   id path string true "attempt id"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "not graded yet"
// @Security BearerAuth
// @Router /api/attempts/{id}/submission [get]
func (c *AttemptController) GetSubmission(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	submission, err := c.SessionService.GetSubmission(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		attemptError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}

// ListMySubmissions godoc
// @Summary List the caller's graded submissions
// @Tags attempts
// @Produce  json
// @Param   page query int false "page" default(1)
// @Param   limit query int false "limit" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/submissions [get]
func (c *AttemptController) ListMySubmissions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)

	submissions, total, err := c.Submissions.ListByStudent(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: submissions, Total: total, Page: page, Limit: limit})
}

func attemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrExamNotFound), errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrInvalidOption), errors.Is(err, util.ErrUnknownQuestion):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrExamNotActive),
		errors.Is(err, util.ErrExamWindowClosed),
		errors.Is(err, util.ErrSessionClosed),
		errors.Is(err, util.ErrAlreadySubmitted),
		errors.Is(err, util.ErrInvalidStateTransition):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrMalformedExam), errors.Is(err, util.ErrGradingInternal):
		util.Error(ctx, http.StatusInternalServerError, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

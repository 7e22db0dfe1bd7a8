package controller

import (
	"academix_backend/internal/model"
	"academix_backend/internal/service"
	"academix_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// CreateExam godoc
// @Summary Create an exam
// @Description Creates a scheduled exam with its question set. Every question carries four choices and one correct option.
// @Tags exams
// @Accept  json
// @Produce  json
// @Param   body body service.CreateExamRequest true "exam definition"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response "not the course owner"
// @Security BearerAuth
// @Router /api/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.CreateExam(ctx.Request.Context(), user.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Created(ctx, exam)
}

// UpdateExam godoc
// @Summary Update an exam definition
// @Description Allowed only while the exam is scheduled and nobody has started an attempt.
// @Tags exams
// @Accept  json
// @Produce  json
// @Param   id path int true "exam id"
// @Param   body body service.UpdateExamRequest true "fields to change"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 409 {object} util.Response "exam is locked"
// @Security BearerAuth
// @Router /api/exams/{id} [put]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	examID, err := pathID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	var req service.UpdateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.UpdateExam(ctx.Request.Context(), user.UserID, examID, &req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrExamLocked):
			util.Conflict(ctx, err.Error())
		default:
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, exam)
}

// CancelExam godoc
// @Summary Cancel an exam
// @Description Cancellation is terminal. Unfinished attempts are abandoned without grading and affected students are notified.
// @Tags exams
// @Produce  json
// @Param   id path int true "exam id"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/exams/{id}/cancel [post]
func (c *ExamController) CancelExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	examID, err := pathID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	if err := c.ExamService.CancelExam(ctx.Request.Context(), user.UserID, examID); err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"cancelled": true})
}

// GetExam godoc
// @Summary Get an exam with its full question set
// @Description Teacher view: includes answer keys.
// @Tags exams
// @Produce  json
// @Param   id path int true "exam id"
// @Success 200 {object} util.Response{data=model.Exam}
// @Security BearerAuth
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	examID, err := pathID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	exam, err := c.ExamService.GetExam(user.UserID, examID)
	if err != nil {
		examError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// ListExams godoc
// @Summary List the caller's exams
// @Tags exams
// @Produce  json
// @Param   status query string false "filter by status" Enums(scheduled, active, completed, cancelled)
// @Param   page query int false "page" default(1)
// @Param   limit query int false "limit" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)
	status := model.ExamStatus(ctx.Query("status"))

	exams, total, err := c.ExamService.ListByTeacher(user.UserID, status, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// ExamResults godoc
// @Summary Exam results overview
// @Description Graded submissions plus aggregate stats for one exam.
// @Tags exams
// @Produce  json
// @Param   id path int true "exam id"
// @Success 200 {object} util.Response{data=service.ExamResults}
// @Security BearerAuth
// @Router /api/exams/{id}/results [get]
func (c *ExamController) ExamResults(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	examID, err := pathID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	results, err := c.ExamService.Results(user.UserID, examID)
	if err != nil {
		examError(ctx, err)
		return
	}
	util.Success(ctx, results)
}

// JoinExam godoc
// @Summary Join an exam by public id
// @Description Student view of the exam: questions without answer keys, plus the effective schedule status.
// @Tags exams
// @Produce  json
// @Param   publicId path string true "public exam id, e.g. E042917"
// @Success 200 {object} util.Response{data=service.StudentExamView}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/exams/join/{publicId} [get]
func (c *ExamController) JoinExam(ctx *gin.Context) {
	view, err := c.ExamService.JoinExam(ctx.Param("publicId"))
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, view)
}

func examError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrExamNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

func pathID(ctx *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	return uint(id), err
}

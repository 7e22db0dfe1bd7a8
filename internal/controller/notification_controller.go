package controller

import (
	"academix_backend/internal/service"
	"academix_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	NotificationService *service.NotificationService
}

func NewNotificationController(notificationService *service.NotificationService) *NotificationController {
	return &NotificationController{NotificationService: notificationService}
}

// ListNotifications godoc
// @Summary List the caller's notifications
// @Tags notifications
// @Produce  json
// @Param   unread query bool false "unread only"
// @Param   page query int false "page" default(1)
// @Param   limit query int false "limit" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/notifications [get]
func (c *NotificationController) ListNotifications(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)
	unreadOnly := ctx.Query("unread") == "true"

	notifications, total, err := c.NotificationService.List(user.UserID, unreadOnly, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: notifications, Total: total, Page: page, Limit: limit})
}

// MarkRead godoc
// @Summary Mark one notification read
// @Tags notifications
// @Produce  json
// @Param   id path int true "notification id"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/notifications/{id}/read [post]
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid notification id")
		return
	}

	if err := c.NotificationService.MarkRead(user.UserID, uint(id)); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"read": true})
}

// MarkAllRead godoc
// @Summary Mark all notifications read
// @Tags notifications
// @Produce  json
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/notifications/read-all [post]
func (c *NotificationController) MarkAllRead(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if err := c.NotificationService.MarkAllRead(user.UserID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"read": true})
}

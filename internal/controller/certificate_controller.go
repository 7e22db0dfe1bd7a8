package controller

import (
	"academix_backend/internal/service"
	"academix_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	CertificateService *service.CertificateService
}

func NewCertificateController(certificateService *service.CertificateService) *CertificateController {
	return &CertificateController{CertificateService: certificateService}
}

// ListCertificates godoc
// @Summary List the caller's certificates
// @Tags certificates
// @Produce  json
// @Param   page query int false "page" default(1)
// @Param   limit query int false "limit" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/certificates [get]
func (c *CertificateController) ListCertificates(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)

	certs, total, err := c.CertificateService.ListByStudent(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: certs, Total: total, Page: page, Limit: limit})
}

// GetCertificate godoc
// @Summary Get one certificate
// @Tags certificates
// @Produce  json
// @Param   id path string true "certificate id"
// @Success 200 {object} util.Response{data=model.Certificate}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/certificates/{id} [get]
func (c *CertificateController) GetCertificate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	cert, err := c.CertificateService.GetForStudent(ctx.Param("id"), user.UserID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrCertificateNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, cert)
}

// VerifyCertificate godoc
// @Summary Verify a certificate on chain
// @Description Public endpoint: checks an issued certificate against the issuance service by record id.
// @Tags certificates
// @Produce  json
// @Param   id path string true "certificate id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/certificates/{id}/verify [get]
func (c *CertificateController) VerifyCertificate(ctx *gin.Context) {
	valid, cert, err := c.CertificateService.Verify(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if cert == nil {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"valid":   valid,
		"status":  cert.Status,
		"tokenId": cert.TokenID,
	})
}

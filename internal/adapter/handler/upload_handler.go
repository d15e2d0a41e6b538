package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

// UploadHandler issues pre-signed upload URLs
type UploadHandler struct {
	uploadUseCase *usecase.UploadUseCase
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploadUseCase *usecase.UploadUseCase) *UploadHandler {
	return &UploadHandler{uploadUseCase: uploadUseCase}
}

// RegisterRoutes registers upload routes
func (h *UploadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/sign", h.SignUpload)
}

// SignUpload returns {url, key, method, expiresAt} for a direct object storage PUT
// @Summary Sign upload
// @Tags Uploads
// @Accept json
// @Produce json
// @Param request body entities.UploadRequest true "file to upload"
// @Success 200 {object} entities.SignedUpload
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/uploads/sign [post]
func (h *UploadHandler) SignUpload(c *gin.Context) {
	var req entities.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = entities.UploadRequest{}
	}

	signed, err := h.uploadUseCase.Sign(c.Request.Context(), middleware.OperatorID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUnauthenticated):
			respondError(c, http.StatusForbidden, err)
		case errors.Is(err, usecase.ErrMissingParameters):
			respondError(c, http.StatusBadRequest, err)
		default:
			logger.Error(err, "Failed to sign upload", map[string]interface{}{"filename": req.Filename})
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	c.JSON(http.StatusOK, signed)
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

var errMissingValue = errors.New(`body must be {"value": ...}`)

// SettingHandler serves runtime configuration flags
type SettingHandler struct {
	settingUseCase *usecase.SettingUseCase
}

// NewSettingHandler creates a new setting handler
func NewSettingHandler(settingUseCase *usecase.SettingUseCase) *SettingHandler {
	return &SettingHandler{settingUseCase: settingUseCase}
}

// RegisterRoutes registers setting routes on an admin group
func (h *SettingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	settings := rg.Group("/settings")
	settings.GET("", h.ListSettings)
	settings.GET("/:key", h.GetSetting)
	settings.PUT("/:key", h.SetSetting)
}

// ListSettings returns every stored flag merged with defaults
func (h *SettingHandler) ListSettings(c *gin.Context) {
	settings, err := h.settingUseCase.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// GetSetting returns the authoritative value of one flag
func (h *SettingHandler) GetSetting(c *gin.Context) {
	setting, err := h.settingUseCase.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, settingStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// SetSetting stores a flag and answers with the value read back
func (h *SettingHandler) SetSetting(c *gin.Context) {
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errMissingValue)
		return
	}
	value, err := settingValue(req.Value)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	setting, err := h.settingUseCase.Set(c.Request.Context(), middleware.OperatorID(c), c.Param("key"), value)
	if err != nil {
		respondError(c, settingStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// settingValue accepts strings as-is and keeps booleans and numbers in their JSON form
func settingValue(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", errMissingValue
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "", errors.New("value must be a string, number or boolean")
	}
	return trimmed, nil
}

func settingStatus(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidSettingKey):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrSettingNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

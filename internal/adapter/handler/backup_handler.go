package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

// BackupHandler serves backup creation, validation, restore and history
type BackupHandler struct {
	backupUseCase *usecase.BackupUseCase
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(backupUseCase *usecase.BackupUseCase) *BackupHandler {
	return &BackupHandler{backupUseCase: backupUseCase}
}

// RegisterRoutes registers backup routes on an admin group
func (h *BackupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	backups := rg.Group("/backups")
	backups.POST("", h.CreateBackup)
	backups.POST("/validate", h.ValidateBackup)
	backups.POST("/restore", h.RestoreBackup)
	backups.GET("/history", h.ListHistory)
	backups.GET("/history/:id", h.GetHistory)
}

// CreateBackup snapshots every entity kind and returns it as a download
// @Summary Create backup
// @Tags Backups
// @Produce json
// @Success 200 {file} file "Backup_Completo_<date>_<time>.json"
// @Failure 409 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/admin/backups [post]
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	operatorID := middleware.OperatorID(c)

	snapshot, err := h.backupUseCase.CreateBackup(c.Request.Context(), operatorID)
	if err != nil {
		var readErr *usecase.ReadError
		switch {
		case errors.Is(err, usecase.ErrOperationInProgress):
			respondError(c, http.StatusConflict, err)
		case errors.Is(err, repository.ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, err)
		case errors.As(err, &readErr):
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": readErr.Kind})
		default:
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	// encode fully before writing headers so a failure can still become a 500
	var buf bytes.Buffer
	if err := h.backupUseCase.ExportBackup(c.Request.Context(), snapshot, &buf); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	filename := h.backupUseCase.ExportFilename(snapshot)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Backup-Counts", formatCounts(snapshot.Metadata))
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// ValidateBackup checks an uploaded backup without restoring it
func (h *BackupHandler) ValidateBackup(c *gin.Context) {
	snapshot, result, ok := h.importUpload(c)
	if !ok {
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"valid":      result.Valid,
		"errors":     result.Errors,
		"warnings":   result.Warnings,
		"created_at": snapshot.CreatedAt,
		"metadata":   snapshot.Metadata,
	})
}

// RestoreBackup validates an uploaded backup and writes its records back.
// 200 when every record was restored, 207 when some failed.
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	snapshot, result, ok := h.importUpload(c)
	if !ok {
		return
	}
	if !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    usecase.ErrInvalidSnapshot.Error(),
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
		return
	}

	restored, err := h.backupUseCase.RestoreBackup(c.Request.Context(), middleware.OperatorID(c), snapshot)
	switch {
	case errors.Is(err, usecase.ErrOperationInProgress):
		respondError(c, http.StatusConflict, err)
		return
	case errors.Is(err, usecase.ErrInvalidSnapshot):
		respondError(c, http.StatusUnprocessableEntity, err)
		return
	case err != nil && restored != nil:
		// interrupted part way; report what was written
		logger.Warn("Restore interrupted", map[string]interface{}{"error": err.Error(), "skipped": restored.Skipped})
		c.JSON(http.StatusServiceUnavailable, restored)
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if restored.Success {
		c.JSON(http.StatusOK, restored)
		return
	}
	c.JSON(http.StatusMultiStatus, restored)
}

// ListHistory returns recent backup, import and restore runs
func (h *BackupHandler) ListHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	entries, err := h.backupUseCase.ListHistory(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

// GetHistory returns one history entry
func (h *BackupHandler) GetHistory(c *gin.Context) {
	entry, err := h.backupUseCase.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *BackupHandler) importUpload(c *gin.Context) (*entities.BackupSnapshot, entities.ValidationResult, bool) {
	body, _, err := uploadedBody(c, "file")
	if err != nil {
		respondError(c, bodyStatus(err), err)
		return nil, entities.ValidationResult{}, false
	}
	defer body.Close()

	snapshot, result, err := h.backupUseCase.ImportBackup(c.Request.Context(), middleware.OperatorID(c), body)
	if err != nil {
		respondError(c, bodyStatus(err), err)
		return nil, entities.ValidationResult{}, false
	}
	return snapshot, result, true
}

// formatCounts renders metadata as "media=2,profiles=3"
func formatCounts(metadata map[string]int) string {
	parts := make([]string, 0, len(metadata))
	for key, count := range metadata {
		parts = append(parts, fmt.Sprintf("%s=%d", strings.TrimPrefix(key, "total_"), count))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

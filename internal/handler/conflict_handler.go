package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// ConflictHandler exposes the conflict ledger endpoints.
type ConflictHandler struct {
	conflicts *service.ConflictService
	scanner   *service.ScannerService
}

// NewConflictHandler constructs handler.
func NewConflictHandler(conflicts *service.ConflictService, scanner *service.ScannerService) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts, scanner: scanner}
}

// List godoc
// @Summary List unresolved conflicts, most severe first
// @Tags Conflicts
// @Produce json
// @Param conflictType query string false "Filter by type"
// @Param severity query string false "Filter by severity"
// @Param scheduleId query string false "Filter by involved schedule"
// @Success 200 {object} response.Envelope
// @Router /conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := models.ConflictFilter{
		ConflictType: c.Query("conflictType"),
		Severity:     c.Query("severity"),
		ScheduleID:   c.Query("scheduleId"),
		Page:         page,
		PageSize:     pageSize,
	}
	conflicts, total, err := h.conflicts.ListUnresolved(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Resolve godoc
// @Summary Resolve a conflict with explanatory notes
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body service.ResolveConflictRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	var req service.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflict, err := h.conflicts.Resolve(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// Scan godoc
// @Summary Run a conflict reconciliation scan now
// @Tags Conflicts
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "A scan is already running"
// @Router /conflicts/scan [post]
func (h *ConflictHandler) Scan(c *gin.Context) {
	result, err := h.scanner.ScanOnce(c.Request.Context())
	if errors.Is(err, service.ErrScanInProgress) {
		response.Error(c, err)
		return
	}
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "conflict scan failed"))
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

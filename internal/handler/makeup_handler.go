package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// MakeupHandler exposes makeup session endpoints.
type MakeupHandler struct {
	makeups *service.MakeupService
}

// NewMakeupHandler constructs handler.
func NewMakeupHandler(makeups *service.MakeupService) *MakeupHandler {
	return &MakeupHandler{makeups: makeups}
}

// List godoc
// @Summary List makeup sessions
// @Tags Makeups
// @Produce json
// @Param status query string false "Filter by status"
// @Param scheduleId query string false "Filter by original schedule"
// @Param teacherId query string false "Filter by teacher"
// @Success 200 {object} response.Envelope
// @Router /makeup-sessions [get]
func (h *MakeupHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := models.MakeupFilter{
		Status:             c.Query("status"),
		OriginalScheduleID: c.Query("scheduleId"),
		TeacherID:          c.Query("teacherId"),
		Page:               page,
		PageSize:           pageSize,
	}
	makeups, total, err := h.makeups.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, makeups, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Get godoc
// @Summary Get a makeup session
// @Tags Makeups
// @Produce json
// @Param id path string true "Makeup ID"
// @Success 200 {object} response.Envelope
// @Router /makeup-sessions/{id} [get]
func (h *MakeupHandler) Get(c *gin.Context) {
	makeup, err := h.makeups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, makeup, nil)
}

// Create godoc
// @Summary Propose a makeup session for a cancelled schedule
// @Tags Makeups
// @Accept json
// @Produce json
// @Param payload body service.CreateMakeupRequest true "Makeup payload"
// @Success 201 {object} response.Envelope
// @Router /makeup-sessions [post]
func (h *MakeupHandler) Create(c *gin.Context) {
	var req service.CreateMakeupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	makeup, err := h.makeups.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, makeup)
}

// Approve godoc
// @Summary Approve a pending makeup session and book its slot
// @Tags Makeups
// @Produce json
// @Param id path string true "Makeup ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Proposed slot already booked"
// @Router /makeup-sessions/{id}/approve [post]
func (h *MakeupHandler) Approve(c *gin.Context) {
	makeup, err := h.makeups.Approve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, makeup, nil)
}

// Reject godoc
// @Summary Reject a pending makeup session
// @Tags Makeups
// @Produce json
// @Param id path string true "Makeup ID"
// @Success 200 {object} response.Envelope
// @Router /makeup-sessions/{id}/reject [post]
func (h *MakeupHandler) Reject(c *gin.Context) {
	makeup, err := h.makeups.Reject(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, makeup, nil)
}

// Complete godoc
// @Summary Mark an approved makeup session as held
// @Tags Makeups
// @Produce json
// @Param id path string true "Makeup ID"
// @Success 200 {object} response.Envelope
// @Router /makeup-sessions/{id}/complete [post]
func (h *MakeupHandler) Complete(c *gin.Context) {
	makeup, err := h.makeups.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, makeup, nil)
}

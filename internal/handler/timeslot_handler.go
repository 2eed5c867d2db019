package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// TimeSlotHandler exposes time slot endpoints.
type TimeSlotHandler struct {
	slots *service.TimeSlotService
}

// NewTimeSlotHandler constructs handler.
func NewTimeSlotHandler(slots *service.TimeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{slots: slots}
}

// List godoc
// @Summary List time slots
// @Tags TimeSlots
// @Produce json
// @Param dayOfWeek query int false "Filter by weekday (0=Monday)"
// @Success 200 {object} response.Envelope
// @Router /time-slots [get]
func (h *TimeSlotHandler) List(c *gin.Context) {
	filter := models.TimeSlotFilter{DayOfWeek: queryIntPtr(c, "dayOfWeek")}
	slots, err := h.slots.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Resolve godoc
// @Summary Resolve or create a time slot by its weekday and times
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param payload body service.ResolveTimeSlotRequest true "Slot triple"
// @Success 200 {object} response.Envelope
// @Router /time-slots [post]
func (h *TimeSlotHandler) Resolve(c *gin.Context) {
	var req service.ResolveTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Get godoc
// @Summary Get a time slot
// @Tags TimeSlots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id} [get]
func (h *TimeSlotHandler) Get(c *gin.Context) {
	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Rename godoc
// @Summary Rename a time slot
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.RenameTimeSlotRequest true "New name"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id} [patch]
func (h *TimeSlotHandler) Rename(c *gin.Context) {
	var req service.RenameTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Rename(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// UnavailabilityHandler exposes teacher unavailability endpoints.
type UnavailabilityHandler struct {
	unavailabilities *service.UnavailabilityService
}

// NewUnavailabilityHandler constructs handler.
func NewUnavailabilityHandler(unavailabilities *service.UnavailabilityService) *UnavailabilityHandler {
	return &UnavailabilityHandler{unavailabilities: unavailabilities}
}

// List godoc
// @Summary List teacher unavailability windows
// @Tags Unavailabilities
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param type query string false "Filter by type"
// @Param dateFrom query string false "Only windows ending on or after (YYYY-MM-DD)"
// @Param dateTo query string false "Only windows starting on or before (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /unavailabilities [get]
func (h *UnavailabilityHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := models.UnavailabilityFilter{
		TeacherID: c.Query("teacherId"),
		Type:      c.Query("type"),
		DateFrom:  queryDatePtr(c, "dateFrom"),
		DateTo:    queryDatePtr(c, "dateTo"),
		Page:      page,
		PageSize:  pageSize,
	}
	entries, total, err := h.unavailabilities.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Create godoc
// @Summary Declare a teacher unavailable over a date range
// @Tags Unavailabilities
// @Accept json
// @Produce json
// @Param payload body service.CreateUnavailabilityRequest true "Unavailability payload"
// @Success 201 {object} response.Envelope
// @Router /unavailabilities [post]
func (h *UnavailabilityHandler) Create(c *gin.Context) {
	var req service.CreateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.unavailabilities.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Delete godoc
// @Summary Remove an unavailability window
// @Tags Unavailabilities
// @Param id path string true "Unavailability ID"
// @Success 204
// @Router /unavailabilities/{id} [delete]
func (h *UnavailabilityHandler) Delete(c *gin.Context) {
	if err := h.unavailabilities.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// ScheduleHandler exposes schedule endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param subjectId query string false "Filter by subject"
// @Param teacherId query string false "Filter by teacher"
// @Param roomId query string false "Filter by room"
// @Param dayOfWeek query int false "Filter by weekday (0=Monday)"
// @Param isCancelled query bool false "Filter by cancellation state"
// @Param dateFrom query string false "Only ranges ending on or after (YYYY-MM-DD)"
// @Param dateTo query string false "Only ranges starting on or before (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := models.ScheduleFilter{
		SubjectID:   c.Query("subjectId"),
		TeacherID:   c.Query("teacherId"),
		RoomID:      c.Query("roomId"),
		DayOfWeek:   queryIntPtr(c, "dayOfWeek"),
		IsCancelled: queryBoolPtr(c, "isCancelled"),
		DateFrom:    queryDatePtr(c, "dateFrom"),
		DateTo:      queryDatePtr(c, "dateTo"),
		Page:        page,
		PageSize:    pageSize,
		SortBy:      c.Query("sortBy"),
		SortOrder:   c.Query("sortOrder"),
	}
	schedules, total, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Get godoc
// @Summary Get a schedule with its program links
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	sched, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sched, nil)
}

// Create godoc
// @Summary Book a recurring session
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Room or teacher already booked"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sched, err := h.schedules.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	response.Created(c, sched)
}

// Update godoc
// @Summary Rewrite a schedule's assignment
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.UpdateScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Room or teacher already booked"
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sched, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sched, nil)
}

// Cancel godoc
// @Summary Cancel a schedule, optionally proposing a makeup session
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.CancelScheduleRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/cancel [post]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	var req service.CancelScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sched, err := h.schedules.Cancel(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sched, nil)
}

// Deactivate godoc
// @Summary Soft-delete a schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Deactivate(c *gin.Context) {
	if err := h.schedules.Deactivate(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckConflicts godoc
// @Summary Dry-run a booking against existing schedules and unavailabilities
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CheckConflictsRequest true "Probe payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/check-conflicts [post]
func (h *ScheduleHandler) CheckConflicts(c *gin.Context) {
	var req service.CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.schedules.CheckConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Weekly godoc
// @Summary Weekly timetable projection
// @Tags Schedules
// @Produce json
// @Param date query string false "Any date inside the target week (YYYY-MM-DD), defaults to today"
// @Param teacherId query string false "Narrow to one teacher"
// @Param roomId query string false "Narrow to one room"
// @Success 200 {object} response.Envelope
// @Router /schedules/weekly [get]
func (h *ScheduleHandler) Weekly(c *gin.Context) {
	anchor := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, want YYYY-MM-DD"))
			return
		}
		anchor = parsed
	}
	week, err := h.schedules.Weekly(c.Request.Context(), anchor, c.Query("teacherId"), c.Query("roomId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, week, nil)
}

// Stats godoc
// @Summary Booking, makeup and conflict counts
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedules/stats [get]
func (h *ScheduleHandler) Stats(c *gin.Context) {
	stats, err := h.schedules.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// respondScheduleError surfaces the blocking booking alongside 409 errors so
// clients can show which session owns the slot.
func respondScheduleError(c *gin.Context, err error) {
	var conflict *models.BookingConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithMeta(c, err, map[string]interface{}{"blocking": conflict.Blocking})
		return
	}
	response.Error(c, err)
}

func queryDatePtr(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &parsed
}

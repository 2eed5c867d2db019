package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/models"
	"github.com/noah-isme/edt-api/internal/service"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
	"github.com/noah-isme/edt-api/pkg/response"
)

// GenerationHandler exposes timetable generation audit endpoints.
type GenerationHandler struct {
	generations *service.GenerationService
}

// NewGenerationHandler constructs handler.
func NewGenerationHandler(generations *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{generations: generations}
}

type startGenerationRequest struct {
	Parameters json.RawMessage `json:"parameters"`
}

// Start godoc
// @Summary Start a timetable validation attempt
// @Tags Generations
// @Accept json
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /generations [post]
func (h *GenerationHandler) Start(c *gin.Context) {
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	gen, err := h.generations.Start(c.Request.Context(), req.Parameters, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gen, nil)
}

// Get godoc
// @Summary Get a generation attempt
// @Tags Generations
// @Produce json
// @Param id path string true "Generation ID"
// @Success 200 {object} response.Envelope
// @Router /generations/{id} [get]
func (h *GenerationHandler) Get(c *gin.Context) {
	gen, err := h.generations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gen, nil)
}

// List godoc
// @Summary List generation attempts
// @Tags Generations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /generations [get]
func (h *GenerationHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	generations, total, err := h.generations.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, generations, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Cancel godoc
// @Summary Cancel a running generation attempt
// @Tags Generations
// @Produce json
// @Param id path string true "Generation ID"
// @Success 200 {object} response.Envelope
// @Router /generations/{id}/cancel [post]
func (h *GenerationHandler) Cancel(c *gin.Context) {
	gen, err := h.generations.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gen, nil)
}

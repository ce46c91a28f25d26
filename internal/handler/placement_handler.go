package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/service"
	appErrors "github.com/noah-isme/special-week-api/pkg/errors"
	"github.com/noah-isme/special-week-api/pkg/response"
)

type placementService interface {
	Create(ctx context.Context, req dto.CreatePlacementRequest) (*models.Placement, error)
	Delete(ctx context.Context, id string) (*dto.DeletePlacementResult, error)
	List(ctx context.Context, query dto.PlacementQuery) ([]models.PlacementDetail, error)
}

type timetableExporter interface {
	Export(ctx context.Context, query dto.ExportTimetableQuery) (*service.ExportFile, error)
}

// PlacementHandler serves the timetable and manual placement endpoints.
type PlacementHandler struct {
	service  placementService
	exporter timetableExporter
}

// NewPlacementHandler constructs a placement handler.
func NewPlacementHandler(svc *service.PlacementService, exporter *service.TimetableExportService) *PlacementHandler {
	return &PlacementHandler{service: svc, exporter: exporter}
}

// List godoc
// @Summary List the timetable
// @Tags Placements
// @Produce json
// @Param day query string false "Weekday (MONDAY..FRIDAY)"
// @Param workshop_id query string false "Filter by workshop"
// @Param room_id query string false "Filter by room"
// @Param teacher_id query string false "Filter by teacher"
// @Success 200 {object} response.Envelope
// @Router /placements [get]
func (h *PlacementHandler) List(c *gin.Context) {
	var query dto.PlacementQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Place a workshop by hand
// @Tags Placements
// @Accept json
// @Produce json
// @Param payload body dto.CreatePlacementRequest true "Placement payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /placements [post]
func (h *PlacementHandler) Create(c *gin.Context) {
	var req dto.CreatePlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid placement payload"))
		return
	}
	placement, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, placement)
}

// Delete godoc
// @Summary Remove a placement
// @Description Cancels every confirmed enrollment on the placement
// @Tags Placements
// @Produce json
// @Param id path string true "Placement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /placements/{id} [delete]
func (h *PlacementHandler) Delete(c *gin.Context) {
	result, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export the timetable
// @Tags Placements
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /placements/export [get]
func (h *PlacementHandler) Export(c *gin.Context) {
	var query dto.ExportTimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export parameters"))
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

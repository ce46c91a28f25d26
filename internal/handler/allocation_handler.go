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

type allocationService interface {
	Preview(ctx context.Context) (*dto.AllocationResult, error)
	Enqueue(ctx context.Context, requestedBy string) (*models.AllocationRun, error)
	GetRun(ctx context.Context, id string) (*models.AllocationRun, error)
	ListRuns(ctx context.Context, query dto.ListRunsQuery) ([]models.AllocationRun, error)
}

// AllocationHandler exposes the batch allocator.
type AllocationHandler struct {
	service allocationService
}

// NewAllocationHandler constructs an allocation handler.
func NewAllocationHandler(svc *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{service: svc}
}

// Preview godoc
// @Summary Preview an allocation run
// @Description Runs the greedy allocator on the current data without persisting anything
// @Tags Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/preview [post]
func (h *AllocationHandler) Preview(c *gin.Context) {
	result, err := h.service.Preview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateRun godoc
// @Summary Queue an allocation run
// @Tags Allocation
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /allocations/runs [post]
func (h *AllocationHandler) CreateRun(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	run, err := h.service.Enqueue(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// ListRuns godoc
// @Summary List allocation runs
// @Tags Allocation
// @Produce json
// @Param limit query int false "Maximum runs returned"
// @Success 200 {object} response.Envelope
// @Router /allocations/runs [get]
func (h *AllocationHandler) ListRuns(c *gin.Context) {
	var query dto.ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// GetRun godoc
// @Summary Get an allocation run
// @Tags Allocation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /allocations/runs/{id} [get]
func (h *AllocationHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

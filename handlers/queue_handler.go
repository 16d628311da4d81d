package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/dispatchcore/bulk-dispatch-service/internal/service"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/response"
)

// QueueHandler exposes the work store's lane counters for operators.
type QueueHandler struct {
	service *service.ContractService
}

func NewQueueHandler(service *service.ContractService) *QueueHandler {
	return &QueueHandler{service: service}
}

// GetQueueStatus godoc
// @Summary Get queue status
// @Description Returns waiting/active/completed/failed counts for both dispatch lanes
// @Tags queues
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for queues"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/queues/status [get]
func (h *QueueHandler) GetQueueStatus(c echo.Context) error {
	statuses, err := h.service.QueueStatus(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, statuses)
}

package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/internal/service"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/response"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/validator"
)

type ContractHandler struct {
	service *service.ContractService
}

func NewContractHandler(service *service.ContractService) *ContractHandler {
	return &ContractHandler{service: service}
}

type CreateRecipientRequest struct {
	Address string `json:"address" validate:"required,max=320"`
	Message string `json:"message" validate:"required,max=4000"`
}

type CreateContractRequest struct {
	ChannelID  string                   `json:"channelId" validate:"required,max=64"`
	Name       string                   `json:"name" validate:"required,max=255"`
	Recipients []CreateRecipientRequest `json:"recipients" validate:"required,min=1,max=10000,dive"`
}

// CreateContract godoc
// @Summary Create a bulk-send contract
// @Description Registers a contract with its recipient list; nothing is sent until the contract is started
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param contract body CreateContractRequest true "Contract to create"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/contracts [post]
func (h *ContractHandler) CreateContract(c echo.Context) error {
	var req CreateContractRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	recipients := make([]service.RecipientInput, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, service.RecipientInput{Address: r.Address, Message: r.Message})
	}

	contract, err := h.service.CreateContract(c.Request().Context(), req.ChannelID, req.Name, recipients)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Contract created successfully", contract)
}

// GetAllContracts godoc
// @Summary List contracts
// @Description Retrieves a paginated list of contracts with optional status filter
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (PENDING, IN_PROGRESS, PAUSED, COMPLETED, FAILED)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/contracts [get]
func (h *ContractHandler) GetAllContracts(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.ContractStatus
	if statusStr := c.QueryParam("status"); statusStr != "" {
		parsed := domain.ContractStatus(statusStr)
		status = &parsed
	}

	contracts, totalCount, err := h.service.ListContracts(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, contracts, page, pageSize, totalCount)
}

// GetContract godoc
// @Summary Get one contract
// @Description Retrieves a contract with its denormalized progress counters
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param id path int true "Contract ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/contracts/{id} [get]
func (h *ContractHandler) GetContract(c echo.Context) error {
	id, err := parseContractID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	contract, err := h.service.GetContract(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrContractNotFound) {
			return response.NotFound(c, err.Error())
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, contract)
}

// StartContract godoc
// @Summary Start or resume a contract
// @Description Queues the contract for dispatch; only recipients not yet delivered are sent
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param id path int true "Contract ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/contracts/{id}/start [post]
func (h *ContractHandler) StartContract(c echo.Context) error {
	id, err := parseContractID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	contract, err := h.service.StartContract(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrContractNotFound):
			return response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrContractCompleted):
			return response.Conflict(c, err)
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.OkWithMessage(c, "Contract queued for dispatch", contract)
}

// PauseContract godoc
// @Summary Pause a running contract
// @Description Stops further deliveries; recipients already delivered keep their status
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param id path int true "Contract ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/contracts/{id}/pause [post]
func (h *ContractHandler) PauseContract(c echo.Context) error {
	id, err := parseContractID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	contract, err := h.service.PauseContract(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrContractNotFound):
			return response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrContractCompleted):
			return response.Conflict(c, err)
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.OkWithMessage(c, "Contract paused", contract)
}

// DeleteContract godoc
// @Summary Delete a contract
// @Description Removes the contract and its recipients; in-flight jobs are dropped by the workers
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param id path int true "Contract ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/contracts/{id} [delete]
func (h *ContractHandler) DeleteContract(c echo.Context) error {
	id, err := parseContractID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	if err := h.service.DeleteContract(c.Request().Context(), id); err != nil {
		return response.NotFound(c, err.Error())
	}

	return response.OkWithMessage(c, "Contract deleted", map[string]any{"id": id})
}

// GetContractStats godoc
// @Summary Get contract statistics
// @Description Returns progress counters, success rate and per-recipient breakdowns
// @Tags contracts
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param id path int true "Contract ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/contracts/{id}/stats [get]
func (h *ContractHandler) GetContractStats(c echo.Context) error {
	id, err := parseContractID(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	stats, err := h.service.GetStats(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrContractNotFound) {
			return response.NotFound(c, err.Error())
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, stats)
}

func parseContractID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contract id")
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	page := defaultPage
	if pageStr := c.QueryParam("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr := c.QueryParam("pageSize"); pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
		pageSize = ps
	}

	return page, pageSize, nil
}

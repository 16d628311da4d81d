package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/dispatchcore/bulk-dispatch-service/internal/service"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/response"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/validator"
)

// MessageHandler exposes the priority one-off send.
type MessageHandler struct {
	service *service.ContractService
}

func NewMessageHandler(service *service.ContractService) *MessageHandler {
	return &MessageHandler{service: service}
}

type SendMessageRequest struct {
	ChannelID string `json:"channelId" validate:"required,max=64"`
	Address   string `json:"address" validate:"required,max=320"`
	Message   string `json:"message" validate:"required,max=4000"`
}

// SendMessage godoc
// @Summary Send a single message
// @Description Queues one message ahead of bulk traffic; channel pacing still applies
// @Tags messages
// @Accept json
// @Produce json
// @Param x-dsp-auth-key header string true "API key for contracts"
// @Param message body SendMessageRequest true "Message to send"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/send [post]
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.service.SendDirect(c.Request().Context(), req.ChannelID, req.Address, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrChannelNotReady) {
			return response.Conflict(c, err)
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Message queued", result)
}

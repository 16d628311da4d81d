// Package channel talks to the channel gateway, the external service that
// owns the actual delivery sessions. The engine only needs two things from
// it: whether a channel is ready, and a send primitive.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

// State is the gateway's view of one connected account. The limit fields
// override the engine's governor defaults when non-zero; UseLimits=false
// switches the channel to unlimited mode.
type State struct {
	ChannelID         string `json:"channelId"`
	Ready             bool   `json:"ready"`
	UseLimits         bool   `json:"useLimits"`
	MessagesPerMinute int    `json:"messagesPerMinute"`
	MessagesPerDay    int    `json:"messagesPerDay"`
	RestEvery         int    `json:"restEvery"`
}

type SendRequest struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

type SendResponse struct {
	DeliveryID string `json:"deliveryId"`
}

// PermanentError marks a send the gateway rejected outright (bad address,
// channel-side refusal). Retrying it will not help.
type PermanentError struct {
	StatusCode int
	Reason     string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("channel rejected send (status %d): %s", e.StatusCode, e.Reason)
}

// IsPermanent reports whether err is a gateway rejection rather than a
// transport-level fault.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

type Client struct {
	httpClient *resty.Client
	baseURL    string
}

func NewClient(cfg environments.GatewayConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-gw-auth-key", cfg.AuthKey)

	return &Client{
		httpClient: client,
		baseURL:    cfg.BaseURL,
	}
}

// GetState fetches the channel's readiness and limit settings. Transport
// failures are returned as-is so callers can treat them as transient.
func (c *Client) GetState(ctx context.Context, channelID string) (*State, error) {
	var state State

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&state).
		Get(fmt.Sprintf("%s/channels/%s/state", c.baseURL, channelID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel state: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d fetching channel state, body: %s", resp.StatusCode(), resp.String())
	}

	return &state, nil
}

// Send hands one message to the gateway. A 202 means the channel accepted
// it; any 4xx is a PermanentError, everything else stays transient so the
// work store's retry policy applies.
func (c *Client) Send(ctx context.Context, channelID, address, message string) (*SendResponse, error) {
	payload := SendRequest{
		Address: address,
		Message: message,
	}

	var sendResp SendResponse

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&sendResp).
		Post(fmt.Sprintf("%s/channels/%s/send", c.baseURL, channelID))

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Gateway send on channel %s completed in %v (status: %d)", channelID, duration, resp.StatusCode())

	switch {
	case resp.StatusCode() == http.StatusAccepted:
		return &sendResp, nil
	case resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError:
		return nil, &PermanentError{StatusCode: resp.StatusCode(), Reason: resp.String()}
	default:
		return nil, fmt.Errorf("unexpected status code %d from gateway, body: %s", resp.StatusCode(), resp.String())
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

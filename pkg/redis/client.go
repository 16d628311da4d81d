package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

type Client struct {
	client valkey.Client
}

const (
	deliveryKeyPrefix = "delivery:"
	deliveryTTL       = 24 * time.Hour
	laneCounterPrefix = "lane:"
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	logger.Infof("Connected to Valkey")

	return &Client{client: client}, nil
}

// CacheDelivery stores the accepted-delivery record for a recipient so the
// last day's deliveries can be inspected without hitting MySQL.
func (c *Client) CacheDelivery(ctx context.Context, recipientID int64, record domain.DeliveryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery record: %w", err)
	}

	key := fmt.Sprintf("%s%d", deliveryKeyPrefix, recipientID)

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(deliveryTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache delivery record: %w", err)
	}

	logger.Debugf("Cached delivery %s for recipient %d", record.DeliveryID, recipientID)

	return nil
}

func (c *Client) GetDelivery(ctx context.Context, recipientID int64) (*domain.DeliveryRecord, error) {
	key := fmt.Sprintf("%s%d", deliveryKeyPrefix, recipientID)

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get delivery record: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery record: %w", err)
	}

	var record domain.DeliveryRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery record: %w", err)
	}

	return &record, nil
}

// IncrLaneCounter bumps a lane's lifetime counter ("completed" or "failed").
// The counters survive restarts, which keeps GET /queues/status stable.
func (c *Client) IncrLaneCounter(ctx context.Context, lane, outcome string) error {
	key := fmt.Sprintf("%s%s:%s", laneCounterPrefix, lane, outcome)

	if err := c.client.Do(ctx, c.client.B().Incr().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to increment lane counter: %w", err)
	}

	return nil
}

func (c *Client) GetLaneCounter(ctx context.Context, lane, outcome string) (int64, error) {
	key := fmt.Sprintf("%s%s:%s", laneCounterPrefix, lane, outcome)

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get lane counter: %w", result.Error())
	}

	return result.AsInt64()
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

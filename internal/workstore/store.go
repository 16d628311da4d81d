// Package workstore wraps the RabbitMQ broker into the two durable lanes
// the engine dispatches through. Jobs are JSON bodies with a UUID id;
// the messages lane is a priority queue so ad-hoc sends can jump ahead of
// bulk traffic.
package workstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

const (
	retryCountHeader = "x-retry-count"
	maxQueuePriority = 10
)

// Counters persists per-lane completed/failed totals across restarts.
// Satisfied by the Valkey client; a nil Counters disables the totals.
type Counters interface {
	IncrLaneCounter(ctx context.Context, lane, outcome string) error
	GetLaneCounter(ctx context.Context, lane, outcome string) (int64, error)
}

type Store struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	cfg      environments.BrokerConfig
	counters Counters
	registry *activeRegistry
}

func NewStore(cfg environments.BrokerConfig, counters Counters) (*Store, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publisher channel: %w", err)
	}

	s := &Store{
		conn:     conn,
		pub:      pub,
		cfg:      cfg,
		counters: counters,
		registry: newActiveRegistry(),
	}

	if err := s.declareLanes(); err != nil {
		s.Close()
		return nil, err
	}

	logger.Infof("Connected to broker, lanes %q and %q declared", cfg.ContractsLane, cfg.MessagesLane)

	return s, nil
}

func (s *Store) declareLanes() error {
	if _, err := s.pub.QueueDeclare(s.cfg.ContractsLane, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare contracts lane: %w", err)
	}

	args := amqp.Table{"x-max-priority": int32(maxQueuePriority)}
	if _, err := s.pub.QueueDeclare(s.cfg.MessagesLane, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare messages lane: %w", err)
	}

	return nil
}

// NewJobID mints the id stamped on every job payload.
func NewJobID() string {
	return uuid.NewString()
}

func (s *Store) publishOn(ch *amqp.Channel, lane string, body []byte, priority uint8, retryCount int) error {
	return ch.Publish("", lane, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Priority:     priority,
		Headers:      amqp.Table{retryCountHeader: int32(retryCount)},
		Body:         body,
	})
}

// Enqueue publishes one job onto a lane.
func (s *Store) Enqueue(ctx context.Context, lane string, job any, priority uint8) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.publishOn(s.pub, lane, body, priority, 0); err != nil {
		return fmt.Errorf("failed to publish to lane %s: %w", lane, err)
	}

	return nil
}

// BulkEnqueue publishes a batch inside a broker transaction so a transient
// failure cannot leave a half-queued fan-out behind.
func (s *Store) BulkEnqueue(ctx context.Context, lane string, jobs []any, priority uint8) error {
	if len(jobs) == 0 {
		return nil
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open bulk channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Tx(); err != nil {
		return fmt.Errorf("failed to start broker transaction: %w", err)
	}

	for _, job := range jobs {
		body, err := json.Marshal(job)
		if err != nil {
			_ = ch.TxRollback()
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := s.publishOn(ch, lane, body, priority, 0); err != nil {
			_ = ch.TxRollback()
			return fmt.Errorf("failed to publish to lane %s: %w", lane, err)
		}
	}

	if err := ch.TxCommit(); err != nil {
		return fmt.Errorf("failed to commit bulk publish: %w", err)
	}

	return nil
}

// Depth returns the number of jobs waiting on a lane.
func (s *Store) Depth(lane string) (int, error) {
	q, err := s.pub.QueueInspect(lane)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect lane %s: %w", lane, err)
	}
	return q.Messages, nil
}

// Status assembles the per-lane snapshot for GET /queues/status.
func (s *Store) Status(ctx context.Context, lane string) (domain.QueueStatus, error) {
	status := domain.QueueStatus{Lane: lane}

	waiting, err := s.Depth(lane)
	if err != nil {
		return status, err
	}
	status.Waiting = waiting

	status.ActiveJobs = s.registry.Sample(lane, 10)
	status.Active = s.registry.Count(lane)

	if s.counters != nil {
		if completed, err := s.counters.GetLaneCounter(ctx, lane, "completed"); err == nil {
			status.Completed = completed
		}
		if failed, err := s.counters.GetLaneCounter(ctx, lane, "failed"); err == nil {
			status.Failed = failed
		}
	}

	return status, nil
}

func (s *Store) recordOutcome(ctx context.Context, lane, outcome string) {
	if s.counters == nil {
		return
	}
	if err := s.counters.IncrLaneCounter(ctx, lane, outcome); err != nil {
		logger.Warnf("Failed to bump %s counter for lane %s: %v", outcome, lane, err)
	}
}

func (s *Store) Close() error {
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsUp reports broker connectivity for the health endpoint.
func (s *Store) IsUp() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

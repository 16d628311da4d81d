package workstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

// Handler processes one dequeued job body. attempt starts at 1. Returning
// a Terminal-wrapped error acks the job without redelivery; any other
// error counts against the lane's retry budget.
type Handler func(ctx context.Context, body []byte, attempt int) error

// Consume starts a worker pool on a lane. Prefetch equals the worker count
// so the broker never hands us more jobs than we can hold, and the optional
// limiter caps the lane's dequeue rate.
func (s *Store) Consume(ctx context.Context, lane string, workers int, limiter *rate.Limiter, handler Handler) error {
	if workers < 1 {
		workers = 1
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Qos(workers, 0, false); err != nil {
		ch.Close()
		return err
	}

	deliveries, err := ch.Consume(lane, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}

	for i := 0; i < workers; i++ {
		go s.worker(ctx, ch, lane, deliveries, limiter, handler)
	}

	go func() {
		<-ctx.Done()
		ch.Close()
	}()

	logger.Infof("Consuming lane %q with %d worker(s)", lane, workers)

	return nil
}

func (s *Store) worker(ctx context.Context, ch *amqp.Channel, lane string, deliveries <-chan amqp.Delivery, limiter *rate.Limiter, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.handleDelivery(ctx, ch, lane, d, limiter, handler)
		}
	}
}

func (s *Store) handleDelivery(ctx context.Context, ch *amqp.Channel, lane string, d amqp.Delivery, limiter *rate.Limiter, handler Handler) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			// Shutting down: put the job back for the next process.
			_ = d.Nack(false, true)
			return
		}
	}

	attempt := retryCount(d) + 1

	s.registry.Add(lane, d.DeliveryTag, sampleJob(d.Body))
	err := handler(ctx, d.Body, attempt)
	s.registry.Remove(lane, d.DeliveryTag)

	if err == nil {
		_ = d.Ack(false)
		s.recordOutcome(ctx, lane, "completed")
		return
	}

	if IsTerminal(err) {
		logger.Warnf("Lane %s job %s failed terminally: %v", lane, d.MessageId, err)
		_ = d.Ack(false)
		s.recordOutcome(ctx, lane, "failed")
		return
	}

	if attempt >= s.cfg.MaxAttempts {
		logger.Errorf("Lane %s job %s exhausted %d attempts: %v", lane, d.MessageId, attempt, err)
		_ = d.Ack(false)
		s.recordOutcome(ctx, lane, "failed")
		return
	}

	logger.Warnf("Lane %s job %s failed (attempt %d/%d), requeueing: %v", lane, d.MessageId, attempt, s.cfg.MaxAttempts, err)

	// Exponential backoff, then republish with a bumped retry header so
	// the attempt count survives the round trip through the broker.
	backoff := s.cfg.RetryBackoffBase * time.Duration(1<<(attempt-1))
	timer := time.NewTimer(backoff)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		_ = d.Nack(false, true)
		return
	case <-timer.C:
	}

	if pubErr := s.republish(ch, lane, d, attempt); pubErr != nil {
		logger.Errorf("Failed to requeue job %s on lane %s: %v", d.MessageId, lane, pubErr)
		// Fall back to broker-side redelivery, losing the retry header bump.
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (s *Store) republish(ch *amqp.Channel, lane string, d amqp.Delivery, attempt int) error {
	return ch.Publish("", lane, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now(),
		Priority:     d.Priority,
		Headers:      amqp.Table{retryCountHeader: int32(attempt)},
		Body:         d.Body,
	})
}

func retryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}

	switch v := d.Headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// sampleJob extracts the identifying fields shown in the queue status
// active-job sample. Unknown payload shapes just yield an empty entry.
func sampleJob(body []byte) domain.ActiveJob {
	var job domain.ActiveJob
	var probe struct {
		JobID      string `json:"jobId"`
		ContractID int64  `json:"contractId"`
		ChannelID  string `json:"channelId"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		job.JobID = probe.JobID
		job.ContractID = probe.ContractID
		job.ChannelID = probe.ChannelID
	}
	return job
}

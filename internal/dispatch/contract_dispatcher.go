// Package dispatch implements the two job consumers of the pipeline:
// contract fan-out and per-message delivery.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/internal/governor"
	"github.com/dispatchcore/bulk-dispatch-service/internal/workstore"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/channel"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

// Small consumer-side interfaces so the dispatchers can be unit tested
// with fakes instead of a live MySQL/RabbitMQ/gateway.

type contractStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Contract, error)
	MarkInProgress(ctx context.Context, id int64, startedAt time.Time) error
	UpdateStatus(ctx context.Context, id int64, status domain.ContractStatus) error
	RecordSuccess(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error
}

type recipientStore interface {
	ListDispatchable(ctx context.Context, contractID int64) ([]domain.Recipient, error)
	MarkQueued(ctx context.Context, id int64, attemptAt time.Time) (bool, error)
	MarkSending(ctx context.Context, id int64) error
	MarkSuccess(ctx context.Context, id int64, deliveryID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	CountOutstanding(ctx context.Context, contractID int64) (int, error)
}

type jobQueue interface {
	BulkEnqueue(ctx context.Context, lane string, jobs []any, priority uint8) error
}

type channelGateway interface {
	GetState(ctx context.Context, channelID string) (*channel.State, error)
	Send(ctx context.Context, channelID, address, message string) (*channel.SendResponse, error)
}

// ContractDispatcher expands one contract into per-recipient message jobs
// on the messages lane.
type ContractDispatcher struct {
	contracts    contractStore
	recipients   recipientStore
	queue        jobQueue
	gateway      channelGateway
	gov          *governor.Governor
	messagesLane string

	now func() time.Time
}

func NewContractDispatcher(
	contracts contractStore,
	recipients recipientStore,
	queue jobQueue,
	gateway channelGateway,
	gov *governor.Governor,
	messagesLane string,
) *ContractDispatcher {
	return &ContractDispatcher{
		contracts:    contracts,
		recipients:   recipients,
		queue:        queue,
		gateway:      gateway,
		gov:          gov,
		messagesLane: messagesLane,
		now:          time.Now,
	}
}

// Handle adapts Dispatch to the work store's handler signature.
func (d *ContractDispatcher) Handle(ctx context.Context, body []byte, attempt int) error {
	var job domain.ContractJob
	if err := json.Unmarshal(body, &job); err != nil {
		return workstore.Terminal(fmt.Errorf("malformed contract job: %w", err))
	}
	if err := job.Validate(); err != nil {
		return workstore.Terminal(err)
	}

	queued, err := d.Dispatch(ctx, job.ContractID)
	if err != nil {
		return err
	}

	logger.Infof("Contract %d fan-out queued %d message(s) (attempt %d)", job.ContractID, queued, attempt)
	return nil
}

// Dispatch runs one fan-out pass and returns the number of jobs enqueued.
// A transient failure returns a retryable error after marking the contract
// FAILED, so re-running the dispatch picks up exactly the recipients that
// were not enqueued (PENDING/FAILED rows only).
func (d *ContractDispatcher) Dispatch(ctx context.Context, contractID int64) (int, error) {
	contract, err := d.contracts.GetByID(ctx, contractID)
	if err != nil {
		return 0, err
	}
	if contract == nil {
		return 0, workstore.Terminal(fmt.Errorf("contract %d no longer exists", contractID))
	}

	state, err := d.gateway.GetState(ctx, contract.ChannelID)
	if err != nil {
		// Gateway unreachable counts as not ready; the work store's
		// backoff will retry the whole dispatch.
		if pauseErr := d.contracts.UpdateStatus(ctx, contractID, domain.ContractPaused); pauseErr != nil {
			logger.Errorf("Failed to pause contract %d: %v", contractID, pauseErr)
		}
		return 0, fmt.Errorf("channel %s state unavailable: %w", contract.ChannelID, err)
	}

	if !state.Ready {
		if pauseErr := d.contracts.UpdateStatus(ctx, contractID, domain.ContractPaused); pauseErr != nil {
			logger.Errorf("Failed to pause contract %d: %v", contractID, pauseErr)
		}
		return 0, fmt.Errorf("channel %s is not ready to send", contract.ChannelID)
	}

	d.gov.SetChannelLimits(contract.ChannelID, governor.Limits{
		UseLimits: state.UseLimits,
		PerMinute: state.MessagesPerMinute,
		PerDay:    state.MessagesPerDay,
		RestEvery: state.RestEvery,
	})

	if err := d.contracts.MarkInProgress(ctx, contractID, d.now()); err != nil {
		// Typically a COMPLETED contract; nothing left to dispatch.
		return 0, workstore.Terminal(err)
	}

	recipients, err := d.recipients.ListDispatchable(ctx, contractID)
	if err != nil {
		return 0, d.failDispatch(ctx, contractID, err)
	}

	if len(recipients) == 0 {
		// Nothing to enqueue; the contract may already be fully drained.
		outstanding, err := d.recipients.CountOutstanding(ctx, contractID)
		if err != nil {
			return 0, err
		}
		if outstanding == 0 {
			if err := d.contracts.MarkCompleted(ctx, contractID, d.now()); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	jobs := make([]any, 0, len(recipients))
	for _, rec := range recipients {
		jobs = append(jobs, domain.MessageJob{
			JobID:       workstore.NewJobID(),
			ContractID:  contractID,
			RecipientID: rec.ID,
			ChannelID:   contract.ChannelID,
			Address:     rec.Address,
			Message:     rec.Message,
			Priority:    domain.PriorityBulk,
		})
	}

	if err := d.queue.BulkEnqueue(ctx, d.messagesLane, jobs, domain.PriorityBulk); err != nil {
		return 0, d.failDispatch(ctx, contractID, err)
	}

	return len(jobs), nil
}

func (d *ContractDispatcher) failDispatch(ctx context.Context, contractID int64, cause error) error {
	if err := d.contracts.UpdateStatus(ctx, contractID, domain.ContractFailed); err != nil {
		logger.Errorf("Failed to mark contract %d failed: %v", contractID, err)
	}
	return cause
}

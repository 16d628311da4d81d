package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/internal/governor"
	"github.com/dispatchcore/bulk-dispatch-service/internal/workstore"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/channel"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

// DeliveryCache is the optional delivery-record cache; a nil value
// disables caching.
type DeliveryCache interface {
	CacheDelivery(ctx context.Context, recipientID int64, record domain.DeliveryRecord) error
	GetDelivery(ctx context.Context, recipientID int64) (*domain.DeliveryRecord, error)
}

// MessageDispatcher delivers one recipient per job: governor checks, the
// gateway send, row/counter updates, and the contract completion probe.
type MessageDispatcher struct {
	contracts  contractStore
	recipients recipientStore
	gateway    channelGateway
	gov        *governor.Governor
	cache      DeliveryCache // optional
	errorMax   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMessageDispatcher(
	contracts contractStore,
	recipients recipientStore,
	gateway channelGateway,
	gov *governor.Governor,
	cache DeliveryCache,
	errorMax int,
) *MessageDispatcher {
	if errorMax <= 0 {
		errorMax = 500
	}
	return &MessageDispatcher{
		contracts:  contracts,
		recipients: recipients,
		gateway:    gateway,
		gov:        gov,
		cache:      cache,
		errorMax:   errorMax,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Handle adapts Process to the work store's handler signature.
func (d *MessageDispatcher) Handle(ctx context.Context, body []byte, attempt int) error {
	var job domain.MessageJob
	if err := json.Unmarshal(body, &job); err != nil {
		return workstore.Terminal(fmt.Errorf("malformed message job: %w", err))
	}
	if err := job.Validate(); err != nil {
		return workstore.Terminal(err)
	}

	return d.Process(ctx, job)
}

// Process runs the delivery steps in order. Transient send errors are
// returned unwrapped so the lane's retry/backoff applies and the recipient
// stays non-terminal; everything else ends in row state.
func (d *MessageDispatcher) Process(ctx context.Context, job domain.MessageJob) error {
	contract, err := d.contracts.GetByID(ctx, job.ContractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return workstore.Terminal(fmt.Errorf("contract %d no longer exists", job.ContractID))
	}

	// Paused or deleted contracts drop their queued jobs here; this is how
	// "pause" removes not-yet-started work from a shared broker queue.
	if contract.Status != domain.ContractInProgress {
		logger.Debugf("Dropping job for recipient %d: contract %d is %s", job.RecipientID, job.ContractID, contract.Status)
		return nil
	}

	queued, err := d.recipients.MarkQueued(ctx, job.RecipientID, d.now())
	if err != nil {
		return err
	}
	if !queued {
		// SUCCESS is terminal; a duplicate job must never resend.
		if d.cache != nil {
			if record, err := d.cache.GetDelivery(ctx, job.RecipientID); err == nil && record != nil {
				logger.Debugf("Dropping job for recipient %d: already delivered as %s", job.RecipientID, record.DeliveryID)
				return nil
			}
		}
		logger.Debugf("Dropping job for recipient %d: already delivered", job.RecipientID)
		return nil
	}

	// Rolling-minute cap: blocking here is deliberate backpressure on the
	// single sender, not a job failure.
	for {
		dec := d.gov.CheckRate(job.ChannelID)
		if dec.Allowed {
			break
		}
		logger.Infof("Channel %s at minute cap, waiting %v", job.ChannelID, dec.Wait)
		if err := d.sleep(ctx, dec.Wait); err != nil {
			return err
		}
	}

	if dec := d.gov.CheckDaily(job.ChannelID); !dec.Allowed {
		// Policy stop: the whole contract pauses and the recipient stays
		// QUEUED for a future restart.
		if pauseErr := d.contracts.UpdateStatus(ctx, job.ContractID, domain.ContractPaused); pauseErr != nil {
			logger.Errorf("Failed to pause contract %d: %v", job.ContractID, pauseErr)
		}
		return workstore.Terminal(errors.New(dec.Reason))
	}

	if d.gov.CheckRest(job.ChannelID) {
		rest := d.gov.RestDuration()
		logger.Infof("Channel %s resting for %v", job.ChannelID, rest)
		err := d.sleep(ctx, rest)
		d.gov.FinishRest(job.ChannelID)
		if err != nil {
			return err
		}
	}

	if err := d.recipients.MarkSending(ctx, job.RecipientID); err != nil {
		return err
	}

	resp, err := d.gateway.Send(ctx, job.ChannelID, job.Address, job.Message)
	if err != nil {
		return d.recordSendFailure(ctx, job, err)
	}

	sentAt := d.now()

	if d.cache != nil {
		record := domain.DeliveryRecord{
			DeliveryID: resp.DeliveryID,
			ChannelID:  job.ChannelID,
			Address:    job.Address,
			SentAt:     sentAt,
		}
		if cacheErr := d.cache.CacheDelivery(ctx, job.RecipientID, record); cacheErr != nil {
			logger.Warnf("Failed to cache delivery for recipient %d: %v", job.RecipientID, cacheErr)
		}
	}

	if err := d.recipients.MarkSuccess(ctx, job.RecipientID, resp.DeliveryID, sentAt); err != nil {
		// The channel accepted the message; giving the job back would
		// resend it. Terminal, the startup sweep reconciles the row.
		logger.Errorf("Send succeeded but recipient %d row update failed: %v", job.RecipientID, err)
		return workstore.Terminal(err)
	}

	if err := d.contracts.RecordSuccess(ctx, job.ContractID); err != nil {
		logger.Errorf("Failed to bump success counters on contract %d: %v", job.ContractID, err)
	}

	d.gov.RecordSend(job.ChannelID)

	if err := d.sleep(ctx, d.gov.PacingDelay(job.ChannelID)); err != nil {
		return workstore.Terminal(err)
	}

	d.checkCompletion(ctx, job.ContractID)

	return nil
}

// recordSendFailure applies the error taxonomy: gateway rejections become
// FAILED rows, transport-class faults propagate unmodified so the lane's
// retry policy runs while the recipient stays SENDING.
func (d *MessageDispatcher) recordSendFailure(ctx context.Context, job domain.MessageJob, sendErr error) error {
	if !channel.IsPermanent(sendErr) {
		return sendErr
	}

	message := truncateError(sendErr.Error(), d.errorMax)
	if err := d.recipients.MarkFailed(ctx, job.RecipientID, message); err != nil {
		logger.Errorf("Failed to mark recipient %d failed: %v", job.RecipientID, err)
		return err
	}

	if err := d.contracts.RecordFailure(ctx, job.ContractID); err != nil {
		logger.Errorf("Failed to bump failure counters on contract %d: %v", job.ContractID, err)
	}

	d.checkCompletion(ctx, job.ContractID)

	return workstore.Terminal(sendErr)
}

func (d *MessageDispatcher) checkCompletion(ctx context.Context, contractID int64) {
	outstanding, err := d.recipients.CountOutstanding(ctx, contractID)
	if err != nil {
		logger.Errorf("Failed to probe completion of contract %d: %v", contractID, err)
		return
	}

	if outstanding > 0 {
		return
	}

	if err := d.contracts.MarkCompleted(ctx, contractID, d.now()); err != nil {
		logger.Errorf("Failed to mark contract %d completed: %v", contractID, err)
		return
	}

	logger.Infof("Contract %d completed", contractID)
}

func truncateError(message string, max int) string {
	if len(message) <= max {
		return message
	}
	return message[:max]
}

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

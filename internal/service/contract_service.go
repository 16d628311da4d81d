package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/internal/governor"
	"github.com/dispatchcore/bulk-dispatch-service/internal/repository"
	"github.com/dispatchcore/bulk-dispatch-service/internal/workstore"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/channel"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
)

var (
	ErrContractNotFound  = errors.New("contract not found")
	ErrContractCompleted = errors.New("contract already completed")
	ErrChannelNotReady   = errors.New("channel is not ready to send")
)

// Small internal interfaces so we can test without a real MySQL/RabbitMQ/gateway.
type contractRepository interface {
	CreateWithRecipients(ctx context.Context, channelID, name string, recipients []repository.RecipientInput) (*domain.Contract, error)
	GetByID(ctx context.Context, id int64) (*domain.Contract, error)
	MarkInProgress(ctx context.Context, id int64, startedAt time.Time) error
	UpdateStatus(ctx context.Context, id int64, status domain.ContractStatus) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, status *domain.ContractStatus, page, pageSize int) ([]domain.Contract, int64, error)
}

type recipientRepository interface {
	ListDispatchable(ctx context.Context, contractID int64) ([]domain.Recipient, error)
	ResetQueuedForContract(ctx context.Context, contractID int64) (int64, error)
	SuccessList(ctx context.Context, contractID int64) ([]domain.SentRecipient, error)
	FailedList(ctx context.Context, contractID int64) ([]domain.FailedRecipient, error)
}

type jobStore interface {
	Enqueue(ctx context.Context, lane string, job any, priority uint8) error
	Depth(lane string) (int, error)
	Status(ctx context.Context, lane string) (domain.QueueStatus, error)
}

type stateGateway interface {
	GetState(ctx context.Context, channelID string) (*channel.State, error)
}

// ContractService owns the contract lifecycle on the API side: create,
// start, pause, delete, stats, plus the priority one-off send.
type ContractService struct {
	contracts  contractRepository
	recipients recipientRepository
	store      jobStore
	gateway    stateGateway
	gov        *governor.Governor
	broker     environments.BrokerConfig
}

func NewContractService(
	contracts contractRepository,
	recipients recipientRepository,
	store jobStore,
	gateway stateGateway,
	gov *governor.Governor,
	broker environments.BrokerConfig,
) *ContractService {
	return &ContractService{
		contracts:  contracts,
		recipients: recipients,
		store:      store,
		gateway:    gateway,
		gov:        gov,
		broker:     broker,
	}
}

// RecipientInput is re-exported so handlers only import the service package.
type RecipientInput = repository.RecipientInput

func (s *ContractService) CreateContract(ctx context.Context, channelID, name string, recipients []RecipientInput) (*domain.Contract, error) {
	contract, err := s.contracts.CreateWithRecipients(ctx, channelID, name, recipients)
	if err != nil {
		return nil, err
	}

	logger.Infof("Created contract %d (%s) with %d recipient(s)", contract.ID, contract.Name, contract.TotalCount)
	return contract, nil
}

func (s *ContractService) GetContract(ctx context.Context, id int64) (*domain.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}
	return contract, nil
}

func (s *ContractService) ListContracts(ctx context.Context, status *domain.ContractStatus, page, pageSize int) ([]domain.Contract, int64, error) {
	return s.contracts.List(ctx, status, page, pageSize)
}

// StartContract queues a fan-out job for the contract. Starting an already
// running contract is harmless: the fan-out only picks up PENDING and FAILED
// rows, so nothing is enqueued twice.
func (s *ContractService) StartContract(ctx context.Context, id int64) (*domain.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}
	if contract.Status == domain.ContractCompleted {
		return nil, ErrContractCompleted
	}

	job := domain.ContractJob{
		JobID:      workstore.NewJobID(),
		ContractID: id,
	}
	if err := s.store.Enqueue(ctx, s.broker.ContractsLane, job, domain.PriorityBulk); err != nil {
		return nil, fmt.Errorf("failed to queue contract dispatch: %w", err)
	}

	logger.Infof("Queued dispatch of contract %d (job %s)", id, job.JobID)
	return contract, nil
}

// PauseContract stops further deliveries. Jobs already on the messages lane
// are dropped when a worker picks them up and sees the PAUSED status; their
// QUEUED claims are released here so a later start re-enqueues them.
func (s *ContractService) PauseContract(ctx context.Context, id int64) (*domain.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}
	if contract.Status == domain.ContractCompleted {
		return nil, ErrContractCompleted
	}

	if err := s.contracts.UpdateStatus(ctx, id, domain.ContractPaused); err != nil {
		return nil, err
	}

	released, err := s.recipients.ResetQueuedForContract(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Infof("Paused contract %d, released %d queued claim(s)", id, released)

	contract.Status = domain.ContractPaused
	return contract, nil
}

func (s *ContractService) DeleteContract(ctx context.Context, id int64) error {
	return s.contracts.Delete(ctx, id)
}

// GetStats assembles the denormalized counters plus the per-recipient
// success and failure breakdowns.
func (s *ContractService) GetStats(ctx context.Context, id int64) (*domain.ContractStats, error) {
	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}

	successList, err := s.recipients.SuccessList(ctx, id)
	if err != nil {
		return nil, err
	}

	failedList, err := s.recipients.FailedList(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &domain.ContractStats{
		ContractID:  contract.ID,
		Status:      contract.Status,
		Total:       contract.TotalCount,
		Success:     contract.SuccessCount,
		Failed:      contract.FailureCount,
		Pending:     contract.PendingCount,
		SuccessList: successList,
		FailedList:  failedList,
	}
	if contract.TotalCount > 0 {
		stats.SuccessRate = float64(contract.SuccessCount) / float64(contract.TotalCount) * 100
	}

	return stats, nil
}

// DirectSendResult is the response of a priority one-off send.
type DirectSendResult struct {
	Contract      *domain.Contract `json:"contract"`
	JobID         string           `json:"jobId"`
	QueuePosition int              `json:"queuePosition"`
}

// SendDirect delivers one message outside any bulk run: a single-recipient
// contract is created and its message job jumps the lane at high priority.
// The governor still paces the channel like any other send.
func (s *ContractService) SendDirect(ctx context.Context, channelID, address, message string) (*DirectSendResult, error) {
	state, err := s.gateway.GetState(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel %s state unavailable: %w", channelID, err)
	}
	if !state.Ready {
		return nil, ErrChannelNotReady
	}

	s.gov.SetChannelLimits(channelID, governor.Limits{
		UseLimits: state.UseLimits,
		PerMinute: state.MessagesPerMinute,
		PerDay:    state.MessagesPerDay,
		RestEvery: state.RestEvery,
	})

	name := fmt.Sprintf("adhoc-%d", time.Now().UnixNano())
	contract, err := s.contracts.CreateWithRecipients(ctx, channelID, name, []RecipientInput{
		{Address: address, Message: message},
	})
	if err != nil {
		return nil, err
	}

	if err := s.contracts.MarkInProgress(ctx, contract.ID, time.Now()); err != nil {
		return nil, err
	}
	contract.Status = domain.ContractInProgress

	recipients, err := s.recipients.ListDispatchable(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	if len(recipients) != 1 {
		return nil, fmt.Errorf("expected one recipient on contract %d, found %d", contract.ID, len(recipients))
	}

	job := domain.MessageJob{
		JobID:       workstore.NewJobID(),
		ContractID:  contract.ID,
		RecipientID: recipients[0].ID,
		ChannelID:   channelID,
		Address:     address,
		Message:     message,
		Priority:    domain.PriorityAdhoc,
	}
	if err := s.store.Enqueue(ctx, s.broker.MessagesLane, job, domain.PriorityAdhoc); err != nil {
		return nil, fmt.Errorf("failed to queue message: %w", err)
	}

	position, err := s.store.Depth(s.broker.MessagesLane)
	if err != nil {
		logger.Warnf("Failed to read queue depth: %v", err)
		position = -1
	}

	logger.Infof("Queued priority send on channel %s (contract %d, job %s)", channelID, contract.ID, job.JobID)

	return &DirectSendResult{
		Contract:      contract,
		JobID:         job.JobID,
		QueuePosition: position,
	}, nil
}

// QueueStatus reports both lanes.
func (s *ContractService) QueueStatus(ctx context.Context) ([]domain.QueueStatus, error) {
	lanes := []string{s.broker.ContractsLane, s.broker.MessagesLane}

	statuses := make([]domain.QueueStatus, 0, len(lanes))
	for _, lane := range lanes {
		status, err := s.store.Status(ctx, lane)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect lane %s: %w", lane, err)
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/channel"
)

//
// Test fakes shared by the dispatcher tests in this package.
//

type fakeContractStore struct {
	mu        sync.Mutex
	contracts map[int64]*domain.Contract
}

func newFakeContractStore(contracts ...*domain.Contract) *fakeContractStore {
	s := &fakeContractStore{contracts: make(map[int64]*domain.Contract)}
	for _, c := range contracts {
		s.contracts[c.ID] = c
	}
	return s
}

func (s *fakeContractStore) GetByID(ctx context.Context, id int64) (*domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *fakeContractStore) MarkInProgress(ctx context.Context, id int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("contract %d not found", id)
	}
	switch c.Status {
	case domain.ContractPending, domain.ContractPaused, domain.ContractFailed, domain.ContractInProgress:
		c.Status = domain.ContractInProgress
		if c.StartedAt == nil {
			c.StartedAt = &startedAt
		}
		return nil
	default:
		return fmt.Errorf("contract %d is not in a dispatchable state", id)
	}
}

func (s *fakeContractStore) UpdateStatus(ctx context.Context, id int64, status domain.ContractStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contracts[id]; ok {
		c.Status = status
	}
	return nil
}

func (s *fakeContractStore) RecordSuccess(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contracts[id]; ok {
		c.SuccessCount++
		c.PendingCount--
	}
	return nil
}

func (s *fakeContractStore) RecordFailure(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contracts[id]; ok {
		c.FailureCount++
		c.PendingCount--
	}
	return nil
}

func (s *fakeContractStore) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contracts[id]; ok && c.Status == domain.ContractInProgress {
		c.Status = domain.ContractCompleted
		c.CompletedAt = &completedAt
	}
	return nil
}

func (s *fakeContractStore) get(id int64) domain.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.contracts[id]
}

type fakeRecipientStore struct {
	mu         sync.Mutex
	order      []int64
	recipients map[int64]*domain.Recipient

	// contracts, when set, mirrors the production store: re-queuing a FAILED
	// row returns its failure to the contract counters.
	contracts *fakeContractStore
}

func newFakeRecipientStore(recipients ...*domain.Recipient) *fakeRecipientStore {
	s := &fakeRecipientStore{recipients: make(map[int64]*domain.Recipient)}
	for _, r := range recipients {
		s.order = append(s.order, r.ID)
		s.recipients[r.ID] = r
	}
	return s
}

func (s *fakeRecipientStore) ListDispatchable(ctx context.Context, contractID int64) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Recipient
	for _, id := range s.order {
		r := s.recipients[id]
		if r.ContractID != contractID {
			continue
		}
		if r.Status == domain.RecipientPending || r.Status == domain.RecipientFailed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRecipientStore) MarkQueued(ctx context.Context, id int64, attemptAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok || r.Status == domain.RecipientSuccess {
		return false, nil
	}
	if r.Status == domain.RecipientFailed && s.contracts != nil {
		s.contracts.mu.Lock()
		if c, ok := s.contracts.contracts[r.ContractID]; ok {
			c.FailureCount--
			c.PendingCount++
		}
		s.contracts.mu.Unlock()
	}
	r.Status = domain.RecipientQueued
	r.Attempts++
	r.LastAttemptAt = &attemptAt
	return true, nil
}

func (s *fakeRecipientStore) MarkSending(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.recipients[id]; ok && r.Status == domain.RecipientQueued {
		r.Status = domain.RecipientSending
	}
	return nil
}

func (s *fakeRecipientStore) MarkSuccess(ctx context.Context, id int64, deliveryID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok {
		return fmt.Errorf("no recipient found with id %d", id)
	}
	r.Status = domain.RecipientSuccess
	r.DeliveryID = &deliveryID
	r.SentAt = &sentAt
	r.ErrorMessage = nil
	return nil
}

func (s *fakeRecipientStore) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok || r.Status == domain.RecipientSuccess {
		return nil
	}
	r.Status = domain.RecipientFailed
	r.ErrorMessage = &errorMessage
	return nil
}

func (s *fakeRecipientStore) CountOutstanding(ctx context.Context, contractID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.recipients {
		if r.ContractID != contractID {
			continue
		}
		switch r.Status {
		case domain.RecipientPending, domain.RecipientQueued, domain.RecipientSending:
			count++
		}
	}
	return count, nil
}

func (s *fakeRecipientStore) get(id int64) domain.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.recipients[id]
}

type bulkCall struct {
	lane     string
	jobs     []domain.MessageJob
	priority uint8
}

type fakeQueue struct {
	mu    sync.Mutex
	calls []bulkCall
	err   error
}

func (q *fakeQueue) BulkEnqueue(ctx context.Context, lane string, jobs []any, priority uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}

	call := bulkCall{lane: lane, priority: priority}
	for _, j := range jobs {
		call.jobs = append(call.jobs, j.(domain.MessageJob))
	}
	q.calls = append(q.calls, call)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	state    *channel.State
	stateErr error

	sendFunc  func(channelID, address, message string) (*channel.SendResponse, error)
	sendCalls []string // addresses in call order
}

func (g *fakeGateway) GetState(ctx context.Context, channelID string) (*channel.State, error) {
	if g.stateErr != nil {
		return nil, g.stateErr
	}
	if g.state != nil {
		return g.state, nil
	}
	return &channel.State{ChannelID: channelID, Ready: true, UseLimits: false}, nil
}

func (g *fakeGateway) Send(ctx context.Context, channelID, address, message string) (*channel.SendResponse, error) {
	g.mu.Lock()
	g.sendCalls = append(g.sendCalls, address)
	g.mu.Unlock()

	if g.sendFunc != nil {
		return g.sendFunc(channelID, address, message)
	}
	return &channel.SendResponse{DeliveryID: "dlv-" + address}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[int64]domain.DeliveryRecord
	gets    int
}

func (c *fakeCache) CacheDelivery(ctx context.Context, recipientID int64, record domain.DeliveryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[int64]domain.DeliveryRecord)
	}
	c.entries[recipientID] = record
	return nil
}

func (c *fakeCache) GetDelivery(ctx context.Context, recipientID int64) (*domain.DeliveryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	record, ok := c.entries[recipientID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

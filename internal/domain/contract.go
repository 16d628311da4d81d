package domain

import "time"

type ContractStatus string

const (
	ContractPending    ContractStatus = "PENDING"
	ContractInProgress ContractStatus = "IN_PROGRESS"
	ContractPaused     ContractStatus = "PAUSED"
	ContractCompleted  ContractStatus = "COMPLETED"
	ContractFailed     ContractStatus = "FAILED"
)

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "PENDING"
	RecipientQueued  RecipientStatus = "QUEUED"
	RecipientSending RecipientStatus = "SENDING"
	RecipientSuccess RecipientStatus = "SUCCESS"
	RecipientFailed  RecipientStatus = "FAILED"
)

// Contract is one bulk-send campaign bound to a single channel.
// The per-status counters are denormalized so progress reads are O(1);
// success_count + failure_count + pending_count == total_count always holds.
type Contract struct {
	ID           int64          `db:"id" json:"id"`
	ChannelID    string         `db:"channel_id" json:"channelId"`
	Name         string         `db:"name" json:"name"`
	TotalCount   int            `db:"total_count" json:"totalCount"`
	SuccessCount int            `db:"success_count" json:"successCount"`
	FailureCount int            `db:"failure_count" json:"failureCount"`
	PendingCount int            `db:"pending_count" json:"pendingCount"`
	Status       ContractStatus `db:"status" json:"status"`
	StartedAt    *time.Time     `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// Recipient is one addressee/payload pair owned by exactly one contract.
// SUCCESS is terminal; a FAILED row may be picked up again by a later
// dispatch pass.
type Recipient struct {
	ID            int64           `db:"id" json:"id"`
	ContractID    int64           `db:"contract_id" json:"contractId"`
	Address       string          `db:"address" json:"address"`
	Message       string          `db:"message" json:"message"`
	Status        RecipientStatus `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastAttemptAt *time.Time      `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"errorMessage,omitempty"`
	DeliveryID    *string         `db:"delivery_id" json:"deliveryId,omitempty"`
	SentAt        *time.Time      `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// ContractStats is the aggregate returned by GET /contracts/:id/stats.
type ContractStats struct {
	ContractID  int64             `json:"contractId"`
	Status      ContractStatus    `json:"status"`
	Total       int               `json:"total"`
	Success     int               `json:"success"`
	Failed      int               `json:"failed"`
	Pending     int               `json:"pending"`
	SuccessRate float64           `json:"successRate"`
	SuccessList []SentRecipient   `json:"successList"`
	FailedList  []FailedRecipient `json:"failedList"`
}

type SentRecipient struct {
	Address string     `db:"address" json:"address"`
	SentAt  *time.Time `db:"sent_at" json:"sentAt,omitempty"`
}

type FailedRecipient struct {
	Address      string  `db:"address" json:"address"`
	ErrorMessage *string `db:"error_message" json:"errorMessage,omitempty"`
	Attempts     int     `db:"attempts" json:"attempts"`
}

// DeliveryRecord is the cache entry written to Valkey after a channel
// accepts a message.
type DeliveryRecord struct {
	DeliveryID string    `json:"deliveryId"`
	ChannelID  string    `json:"channelId"`
	Address    string    `json:"address"`
	SentAt     time.Time `json:"sentAt"`
}

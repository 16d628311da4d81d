package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
)

// ContractRepository handles database operations for contract rows.
// Counter mutations are single atomic UPDATE statements, never
// read-modify-write, so they stay correct under concurrent dispatchers.
type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// RecipientInput is one addressee in a create request.
type RecipientInput struct {
	Address string
	Message string
}

// CreateWithRecipients inserts the contract and all its recipients in one
// transaction. Everything starts PENDING with pending_count == total_count.
func (r *ContractRepository) CreateWithRecipients(
	ctx context.Context,
	channelID, name string,
	recipients []RecipientInput,
) (*domain.Contract, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO contracts (channel_id, name, total_count, pending_count, status)
		VALUES (?, ?, ?, ?, 'PENDING')
	`, channelID, name, len(recipients), len(recipients))
	if err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	contractID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get contract id: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO recipients (contract_id, address, message, status)
		VALUES (?, ?, ?, 'PENDING')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recipients {
		if _, err := stmt.ExecContext(ctx, contractID, rec.Address, rec.Message); err != nil {
			return nil, fmt.Errorf("failed to insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contract: %w", err)
	}

	return r.GetByID(ctx, contractID)
}

func (r *ContractRepository) GetByID(ctx context.Context, id int64) (*domain.Contract, error) {
	query := `
		SELECT id, channel_id, name, total_count, success_count, failure_count, pending_count,
		       status, started_at, completed_at, created_at, updated_at
		FROM contracts
		WHERE id = ?
	`

	var contract domain.Contract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return &contract, nil
}

// MarkInProgress flips a dispatchable contract to IN_PROGRESS and stamps
// started_at on the first run. COMPLETED contracts are left alone.
func (r *ContractRepository) MarkInProgress(ctx context.Context, id int64, startedAt time.Time) error {
	query := `
		UPDATE contracts
		SET status = 'IN_PROGRESS', started_at = COALESCE(started_at, ?)
		WHERE id = ? AND status IN ('PENDING', 'PAUSED', 'FAILED', 'IN_PROGRESS')
	`

	result, err := r.db.ExecContext(ctx, query, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark contract in progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("contract %d is not in a dispatchable state", id)
	}

	return nil
}

func (r *ContractRepository) UpdateStatus(ctx context.Context, id int64, status domain.ContractStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE contracts SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	return nil
}

// RecordSuccess atomically moves one recipient from pending to success on
// the denormalized counters.
func (r *ContractRepository) RecordSuccess(ctx context.Context, id int64) error {
	query := `
		UPDATE contracts
		SET success_count = success_count + 1, pending_count = pending_count - 1
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record success on contract: %w", err)
	}
	return nil
}

// RecordFailure atomically moves one recipient from pending to failed.
func (r *ContractRepository) RecordFailure(ctx context.Context, id int64) error {
	query := `
		UPDATE contracts
		SET failure_count = failure_count + 1, pending_count = pending_count - 1
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record failure on contract: %w", err)
	}
	return nil
}

// MarkCompleted finishes a drained contract. The status guard makes the
// transition race-safe when two workers observe the last terminal outcome.
func (r *ContractRepository) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	query := `
		UPDATE contracts
		SET status = 'COMPLETED', completed_at = ?
		WHERE id = ? AND status = 'IN_PROGRESS'
	`

	if _, err := r.db.ExecContext(ctx, query, completedAt, id); err != nil {
		return fmt.Errorf("failed to mark contract completed: %w", err)
	}
	return nil
}

func (r *ContractRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no contract found with id %d", id)
	}

	return nil
}

func (r *ContractRepository) List(
	ctx context.Context,
	status *domain.ContractStatus,
	page, pageSize int,
) ([]domain.Contract, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var contracts []domain.Contract

	if status != nil {
		if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM contracts WHERE status = ?", *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
		}

		query := `
			SELECT id, channel_id, name, total_count, success_count, failure_count, pending_count,
			       status, started_at, completed_at, created_at, updated_at
			FROM contracts
			WHERE status = ?
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &contracts, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM contracts"); err != nil {
			return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
		}

		query := `
			SELECT id, channel_id, name, total_count, success_count, failure_count, pending_count,
			       status, started_at, completed_at, created_at, updated_at
			FROM contracts
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &contracts, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
		}
	}

	return contracts, totalCount, nil
}

// ListInProgressIDs feeds the startup reconciliation pass.
func (r *ContractRepository) ListInProgressIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM contracts WHERE status = 'IN_PROGRESS' ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list in-progress contracts: %w", err)
	}
	return ids, nil
}

// CountSentTodayByChannel reseeds the governor's daily counters after a
// restart from the rows that already succeeded today.
func (r *ContractRepository) CountSentTodayByChannel(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT c.channel_id AS channel_id, COUNT(*) AS sent
		FROM recipients r
		JOIN contracts c ON c.id = r.contract_id
		WHERE r.status = 'SUCCESS' AND r.sent_at >= CURDATE()
		GROUP BY c.channel_id
	`

	var rows []struct {
		ChannelID string `db:"channel_id"`
		Sent      int    `db:"sent"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count today's sends: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ChannelID] = row.Sent
	}
	return counts, nil
}

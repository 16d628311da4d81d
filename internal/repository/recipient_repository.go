package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
)

// RecipientRepository handles database operations for recipient rows.
// Status transitions carry WHERE guards so a stale worker cannot move a
// row backwards; SUCCESS in particular is terminal.
type RecipientRepository struct {
	db *sqlx.DB
}

func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int64) (*domain.Recipient, error) {
	query := `
		SELECT id, contract_id, address, message, status, attempts, last_attempt_at,
		       error_message, delivery_id, sent_at, created_at
		FROM recipients
		WHERE id = ?
	`

	var recipient domain.Recipient
	if err := r.db.GetContext(ctx, &recipient, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return &recipient, nil
}

// ListDispatchable returns the rows a fan-out pass may enqueue: PENDING and
// FAILED, in creation order. QUEUED/SENDING/SUCCESS rows are excluded so
// re-running a dispatch never duplicates live work.
func (r *RecipientRepository) ListDispatchable(ctx context.Context, contractID int64) ([]domain.Recipient, error) {
	query := `
		SELECT id, contract_id, address, message, status, attempts, last_attempt_at,
		       error_message, delivery_id, sent_at, created_at
		FROM recipients
		WHERE contract_id = ? AND status IN ('PENDING', 'FAILED')
		ORDER BY created_at ASC, id ASC
	`

	var recipients []domain.Recipient
	if err := r.db.SelectContext(ctx, &recipients, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list dispatchable recipients: %w", err)
	}

	return recipients, nil
}

// MarkQueued starts an attempt cycle. Returns false when the row is already
// terminal (SUCCESS), so callers drop the job instead of resending.
//
// A FAILED row returning to the queue hands its earlier failure back to the
// contract counters (failure_count-1, pending_count+1) in the same
// transaction, so the outcome of the retry is counted exactly once and
// pending never goes negative.
func (r *RecipientRepository) MarkQueued(ctx context.Context, id int64, attemptAt time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE recipients
		SET status = 'QUEUED', attempts = attempts + 1, last_attempt_at = ?
		WHERE id = ? AND status = 'FAILED'
	`, attemptAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark recipient queued: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE contracts c
			JOIN recipients r ON r.contract_id = c.id
			SET c.failure_count = c.failure_count - 1, c.pending_count = c.pending_count + 1
			WHERE r.id = ?
		`, id)
		if err != nil {
			return false, fmt.Errorf("failed to return failure to pending counters: %w", err)
		}
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE recipients
			SET status = 'QUEUED', attempts = attempts + 1, last_attempt_at = ?
			WHERE id = ? AND status <> 'SUCCESS'
		`, attemptAt, id)
		if err != nil {
			return false, fmt.Errorf("failed to mark recipient queued: %w", err)
		}

		rows, err = result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get affected rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit queued transition: %w", err)
	}

	return rows > 0, nil
}

func (r *RecipientRepository) MarkSending(ctx context.Context, id int64) error {
	query := "UPDATE recipients SET status = 'SENDING' WHERE id = ? AND status = 'QUEUED'"

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark recipient sending: %w", err)
	}
	return nil
}

func (r *RecipientRepository) MarkSuccess(ctx context.Context, id int64, deliveryID string, sentAt time.Time) error {
	query := `
		UPDATE recipients
		SET status = 'SUCCESS', delivery_id = ?, sent_at = ?, error_message = NULL
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, deliveryID, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient success: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no recipient found with id %d", id)
	}

	return nil
}

func (r *RecipientRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE recipients
		SET status = 'FAILED', error_message = ?
		WHERE id = ? AND status <> 'SUCCESS'
	`

	if _, err := r.db.ExecContext(ctx, query, errorMessage, id); err != nil {
		return fmt.Errorf("failed to mark recipient failed: %w", err)
	}
	return nil
}

// CountOutstanding is the completion probe: recipients still in a
// non-terminal state for the contract.
func (r *RecipientRepository) CountOutstanding(ctx context.Context, contractID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM recipients
		WHERE contract_id = ? AND status IN ('PENDING', 'QUEUED', 'SENDING')
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, contractID); err != nil {
		return 0, fmt.Errorf("failed to count outstanding recipients: %w", err)
	}

	return count, nil
}

// ResetQueuedForContract pulls a paused contract's queued rows back to
// PENDING so a later start re-dispatches them.
func (r *RecipientRepository) ResetQueuedForContract(ctx context.Context, contractID int64) (int64, error) {
	query := `
		UPDATE recipients
		SET status = 'PENDING'
		WHERE contract_id = ? AND status = 'QUEUED'
	`

	result, err := r.db.ExecContext(ctx, query, contractID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset queued recipients: %w", err)
	}

	return result.RowsAffected()
}

// SweepStuck is the startup reconciliation pass: rows left QUEUED or
// SENDING by a crash become PENDING again and get re-dispatched.
func (r *RecipientRepository) SweepStuck(ctx context.Context) (int64, error) {
	query := `
		UPDATE recipients
		SET status = 'PENDING'
		WHERE status IN ('QUEUED', 'SENDING')
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck recipients: %w", err)
	}

	return result.RowsAffected()
}

func (r *RecipientRepository) SuccessList(ctx context.Context, contractID int64) ([]domain.SentRecipient, error) {
	query := `
		SELECT address, sent_at
		FROM recipients
		WHERE contract_id = ? AND status = 'SUCCESS'
		ORDER BY sent_at ASC
	`

	var list []domain.SentRecipient
	if err := r.db.SelectContext(ctx, &list, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list successful recipients: %w", err)
	}

	return list, nil
}

func (r *RecipientRepository) FailedList(ctx context.Context, contractID int64) ([]domain.FailedRecipient, error) {
	query := `
		SELECT address, error_message, attempts
		FROM recipients
		WHERE contract_id = ? AND status = 'FAILED'
		ORDER BY id ASC
	`

	var list []domain.FailedRecipient
	if err := r.db.SelectContext(ctx, &list, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list failed recipients: %w", err)
	}

	return list, nil
}

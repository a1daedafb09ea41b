package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
)

// LedgerRepository implements port.CreditLedger
type LedgerRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger, now: time.Now}
}

// CurrentBalance returns the balance, zero when no row exists
func (r *LedgerRepository) CurrentBalance(ctx context.Context, subjectID, creditKind string) (float64, error) {
	var balance float64
	err := r.db.getExecutor(ctx).QueryRow(ctx,
		`SELECT balance FROM credit_balances WHERE subject_id = $1 AND credit_kind = $2`,
		subjectID, creditKind,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount, clamping at zero
func (r *LedgerRepository) Debit(ctx context.Context, subjectID, creditKind string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount cannot be negative: %v", amount)
	}

	var balance float64
	err := r.db.getExecutor(ctx).QueryRow(ctx, `
		INSERT INTO credit_balances (subject_id, credit_kind, balance, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (subject_id, credit_kind) DO UPDATE
		SET balance = GREATEST(credit_balances.balance - $4, 0),
		    updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, subjectID, creditKind, r.now().UTC(), amount).Scan(&balance)
	if err != nil {
		r.logger.Error("Failed to debit balance", zap.String("subject_id", subjectID), zap.Error(err))
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}
	return balance, nil
}

// SetBalance overwrites the balance
func (r *LedgerRepository) SetBalance(ctx context.Context, subjectID, creditKind string, balance float64) error {
	if balance < 0 {
		return fmt.Errorf("balance cannot be negative: %v", balance)
	}
	_, err := r.db.getExecutor(ctx).Exec(ctx, `
		INSERT INTO credit_balances (subject_id, credit_kind, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, credit_kind) DO UPDATE
		SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, subjectID, creditKind, balance, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.CreditLedger = (*LedgerRepository)(nil)

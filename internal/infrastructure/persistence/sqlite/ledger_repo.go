package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"go.uber.org/zap"
)

// LedgerRepository implements port.CreditLedger on credit_balances
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
	err := r.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE subject_id = ? AND credit_kind = ?`,
		subjectID, creditKind,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to read balance", zap.String("subject_id", subjectID), zap.String("credit_kind", creditKind), zap.Error(err))
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount in a single statement, clamping at zero
func (r *LedgerRepository) Debit(ctx context.Context, subjectID, creditKind string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount cannot be negative: %v", amount)
	}

	query := `
		INSERT INTO credit_balances (subject_id, credit_kind, balance, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (subject_id, credit_kind) DO UPDATE
		SET balance = MAX(credit_balances.balance - ?, 0),
			updated_at = excluded.updated_at
		RETURNING balance
	`

	var balance float64
	err := r.db.getExecutor(ctx).QueryRowContext(ctx, query, subjectID, creditKind, r.now().UTC(), amount).Scan(&balance)
	if err != nil {
		r.logger.Error("Failed to debit balance",
			zap.String("subject_id", subjectID),
			zap.String("credit_kind", creditKind),
			zap.Float64("amount", amount),
			zap.Error(err))
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}

	r.logger.Info("Balance debited",
		zap.String("subject_id", subjectID),
		zap.String("credit_kind", creditKind),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance))
	return balance, nil
}

// SetBalance overwrites the balance
func (r *LedgerRepository) SetBalance(ctx context.Context, subjectID, creditKind string, balance float64) error {
	if balance < 0 {
		return fmt.Errorf("balance cannot be negative: %v", balance)
	}

	query := `
		INSERT INTO credit_balances (subject_id, credit_kind, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_id, credit_kind) DO UPDATE
		SET balance = excluded.balance, updated_at = excluded.updated_at
	`
	if _, err := r.db.getExecutor(ctx).ExecContext(ctx, query, subjectID, creditKind, balance, r.now().UTC()); err != nil {
		r.logger.Error("Failed to set balance", zap.String("subject_id", subjectID), zap.Error(err))
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.CreditLedger = (*LedgerRepository)(nil)

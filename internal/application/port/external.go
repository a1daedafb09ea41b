package port

import "context"

// IdentityProvider resolves roles and group memberships for an actor.
// Values are returned as stored; the caller normalizes them.
type IdentityProvider interface {
	RolesOf(ctx context.Context, actorID string) ([]string, error)
	GroupMembershipsOf(ctx context.Context, actorID string) ([]string, error)
}

// CreditLedger holds per-subject credit balances. Balances never go below zero.
type CreditLedger interface {
	CurrentBalance(ctx context.Context, subjectID, creditKind string) (float64, error)

	// Debit subtracts amount, clamping at zero, and returns the new balance
	Debit(ctx context.Context, subjectID, creditKind string, amount float64) (float64, error)

	SetBalance(ctx context.Context, subjectID, creditKind string, balance float64) error
}

package ledger

import "context"

// Accounts is the slice of the store the escrow paths touch.
type Accounts interface {
	Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
}

// Ledger names the escrow movements so every balance change carries its
// entry type and the match it belongs to.
type Ledger struct {
	Accounts Accounts
}

func New(a Accounts) *Ledger {
	return &Ledger{Accounts: a}
}

func (l *Ledger) DebitAnte(ctx context.Context, userID, matchID string, amount int64) (int64, error) {
	return l.Accounts.Debit(ctx, userID, amount, "ante_debit", "match", matchID)
}

func (l *Ledger) DebitDoubleDown(ctx context.Context, userID, matchID string, amount int64) (int64, error) {
	return l.Accounts.Debit(ctx, userID, amount, "double_down_debit", "match", matchID)
}

func (l *Ledger) RefundAnte(ctx context.Context, userID, matchID string, amount int64) (int64, error) {
	return l.Accounts.Credit(ctx, userID, amount, "ante_refund", "match", matchID)
}

package store

import "time"

type User struct {
	ID        string
	Name      string
	TokenHash string
	IsGuest   bool
	Rating    int
	XP        int64
	Level     int
	CreatedAt time.Time
}

type Progression struct {
	Rating int
	XP     int64
	Level  int
}

type LedgerEntry struct {
	ID        string
	UserID    string
	Type      string
	Amount    int64
	RefType   string
	RefID     string
	CreatedAt time.Time
}

type MatchHistoryRow struct {
	ID          string
	MatchID     string
	UserID      string
	Role        string
	Outcome     string
	RatingDelta int
	Payout      int64
	CreatedAt   time.Time
}

// SeatSettlement carries everything the settlement transaction writes for
// one seat. Derived values (new rating, new level) are computed by the
// orchestrator before the transaction opens.
type SeatSettlement struct {
	UserID      string
	Role        string
	Outcome     string // "win", "loss", or "draw"
	Payout      int64
	RatingDelta int
	NewRating   int
	XPGained    int64
	NewXP       int64
	NewLevel    int
	QuestDeltas map[string]int
}

// SettleParams is the atomic end-of-match write: payouts, progression,
// quest progress, and a history row per seat, committed together.
type SettleParams struct {
	MatchID   string
	Mode      string
	WinReason string
	MoveCount int
	Moves     []byte // shared move list, stored once and referenced by both rows
	Pot       int64
	Remainder int64
	Seats     []SeatSettlement
}

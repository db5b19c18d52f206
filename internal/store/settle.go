package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SettleMatch commits the whole end-of-match write in one transaction:
// pot payouts, rating/xp/level, quest progress, the match row, and one
// history row per seat. If anything fails the transaction rolls back and
// no partial payout becomes visible.
func (s *Store) SettleMatch(ctx context.Context, p SettleParams) error {
	if p.MatchID == "" {
		return errors.New("match id required")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO matches (id, mode, win_reason, move_count, moves, pot) VALUES ($1,$2,$3,$4,$5,$6)`,
		p.MatchID, p.Mode, p.WinReason, p.MoveCount, p.Moves, p.Pot); err != nil {
		return err
	}

	for _, seat := range p.Seats {
		if seat.Payout > 0 {
			if _, err := creditTx(ctx, tx, seat.UserID, seat.Payout, "pot_payout", "match", p.MatchID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET rating = $1, xp = $2, level = $3 WHERE id = $4`,
			seat.NewRating, seat.NewXP, seat.NewLevel, seat.UserID); err != nil {
			return err
		}
		for questID, delta := range seat.QuestDeltas {
			if delta == 0 {
				continue
			}
			if _, err := tx.Exec(ctx, `INSERT INTO user_quests (user_id, quest_id, progress) VALUES ($1,$2,$3)
				ON CONFLICT (user_id, quest_id) DO UPDATE SET progress = user_quests.progress + $3, updated_at = now()`,
				seat.UserID, questID, delta); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO match_history (id, match_id, user_id, role, outcome, rating_delta, payout) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			NewID(), p.MatchID, seat.UserID, seat.Role, seat.Outcome, seat.RatingDelta, seat.Payout); err != nil {
			return err
		}
	}

	if p.Remainder > 0 {
		// Draw split leaves an odd coin undistributed; keep it auditable.
		if err := recordRemainder(ctx, tx, p.MatchID, p.Remainder); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func recordRemainder(ctx context.Context, tx pgx.Tx, matchID string, amount int64) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, user_id, type, amount, ref_type, ref_id) VALUES ($1,NULL,$2,$3,$4,$5)`,
		NewID(), "pot_remainder", amount, "match", matchID)
	return err
}

func (s *Store) ListMatchHistory(ctx context.Context, userID string, limit int) ([]MatchHistoryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, match_id, user_id, role, outcome, rating_delta, payout, created_at FROM match_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MatchHistoryRow{}
	for rows.Next() {
		var r MatchHistoryRow
		if err := rows.Scan(&r.ID, &r.MatchID, &r.UserID, &r.Role, &r.Outcome, &r.RatingDelta, &r.Payout, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package arena

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"gridstakes/internal/game"
	"gridstakes/internal/progression"
	"gridstakes/internal/store"
)

type walletUpdate struct {
	Type    string `json:"type"`
	Balance int64  `json:"balance"`
}

type progressionUpdate struct {
	Type        string         `json:"type"`
	Rating      int            `json:"rating"`
	RatingDelta int            `json:"rating_delta"`
	XPGained    int64          `json:"xp_gained"`
	Level       int            `json:"level"`
	Quests      map[string]int `json:"quests,omitempty"`
}

// seatFacts is the per-seat input to settlement, captured under the room
// lock so the computation can run without it.
type seatFacts struct {
	userID string
	name   string
	role   game.Role
}

// settle writes the finished match to the store exactly once. The settling
// flag is set under the lock before any store call, so concurrent finish
// paths (move, timeout claim, sweep) collapse to one writer. A failed
// settlement clears the flag and is retried only by a later timeout claim.
func (o *Orchestrator) settle(ctx context.Context, roomID string, room *Room) {
	room.mu.Lock()
	sess := room.session
	if sess.Status != game.StatusFinished || room.settled || room.settling {
		room.mu.Unlock()
		return
	}
	room.settling = true

	pot := sess.Pot
	winner := sess.Winner
	draw := sess.Draw
	reason := sess.Reason
	blitz := sess.Config.Blitz
	ante := sess.Ante
	moveCount := len(sess.Moves)
	moves := make([]game.Move, len(sess.Moves))
	copy(moves, sess.Moves)

	var facts []seatFacts
	for _, seat := range sess.Seats {
		if seat.IsPlayer() {
			facts = append(facts, seatFacts{userID: seat.UserID, name: seat.Name, role: seat.Role})
		}
	}
	room.mu.Unlock()

	if len(facts) != 2 {
		// A waiting room can never reach finished; this is a bug, not a
		// recoverable store error.
		log.Error().Str("room_id", roomID).Int("seats", len(facts)).Msg("settlement with wrong seat count")
		o.clearSettling(room)
		return
	}

	params, seatUpdates, err := o.buildSettlement(ctx, roomID, facts, pot, winner, draw, reason, blitz, ante, moveCount, moves)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("settlement aborted, awaiting retry")
		o.clearSettling(room)
		return
	}

	if err := o.store.SettleMatch(ctx, params); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("settlement write failed, awaiting retry")
		o.clearSettling(room)
		return
	}

	room.mu.Lock()
	room.settling = false
	room.settled = true
	sess.Pot = 0
	snap := sess.Snapshot(o.now())
	room.mu.Unlock()

	log.Info().
		Str("room_id", roomID).
		Str("match_id", params.MatchID).
		Int64("pot", pot).
		Int64("remainder", params.Remainder).
		Str("win_reason", params.WinReason).
		Msg("match settled")

	o.broadcast(roomID, snap)
	for i, f := range facts {
		if balance, err := o.store.GetBalance(ctx, f.userID); err == nil {
			o.sendTo(f.userID, walletUpdate{Type: "wallet_update", Balance: balance})
		}
		up := seatUpdates[i]
		o.sendTo(f.userID, up)
		if o.lb != nil {
			if err := o.lb.RecordRating(ctx, f.userID, f.name, up.Rating); err != nil {
				log.Warn().Err(err).Str("user_id", f.userID).Msg("leaderboard update failed")
			}
		}
	}
}

func (o *Orchestrator) clearSettling(room *Room) {
	room.mu.Lock()
	room.settling = false
	room.mu.Unlock()
}

// buildSettlement computes payouts, rating deltas, XP, and quest progress
// for both seats. All store reads happen here; the single write is the
// caller's SettleMatch transaction.
func (o *Orchestrator) buildSettlement(
	ctx context.Context,
	roomID string,
	facts []seatFacts,
	pot int64,
	winner game.Role,
	draw bool,
	reason game.WinReason,
	blitz bool,
	ante int64,
	moveCount int,
	moves []game.Move,
) (store.SettleParams, []progressionUpdate, error) {
	prog := make([]*store.Progression, 2)
	for i, f := range facts {
		p, err := o.store.GetProgression(ctx, f.userID)
		if err != nil {
			return store.SettleParams{}, nil, err
		}
		prog[i] = p
	}

	movesJSON, err := json.Marshal(moves)
	if err != nil {
		return store.SettleParams{}, nil, err
	}

	mode := "standard"
	if blitz {
		mode = "blitz"
	}
	matchID := store.NewID()

	params := store.SettleParams{
		MatchID:   matchID,
		Mode:      mode,
		WinReason: string(reason),
		MoveCount: moveCount,
		Moves:     movesJSON,
		Pot:       pot,
	}

	var half int64
	if draw {
		half = pot / 2
		params.Remainder = pot - 2*half
	}

	updates := make([]progressionUpdate, 2)
	for i, f := range facts {
		other := prog[1-i]
		outcome := "draw"
		score := 0.5
		payout := half
		if !draw {
			if f.role == winner {
				outcome = "win"
				score = 1
				payout = pot
			} else {
				outcome = "loss"
				score = 0
				payout = 0
			}
		}

		delta := progression.EloDelta(prog[i].Rating, other.Rating, score, progression.DefaultK)
		xpGained := progression.XPForResult(outcome)
		newLevel, newXP := progression.ApplyXP(prog[i].Level, prog[i].XP, xpGained)
		deltas := progression.QuestDeltas(o.quests, progression.MatchFacts{
			Outcome:   outcome,
			Role:      string(f.role),
			Blitz:     blitz,
			Wagered:   ante > 0,
			MoveCount: moveCount,
		})

		params.Seats = append(params.Seats, store.SeatSettlement{
			UserID:      f.userID,
			Role:        string(f.role),
			Outcome:     outcome,
			Payout:      payout,
			RatingDelta: delta,
			NewRating:   prog[i].Rating + delta,
			XPGained:    xpGained,
			NewXP:       newXP,
			NewLevel:    newLevel,
			QuestDeltas: deltas,
		})
		updates[i] = progressionUpdate{
			Type:        "progression_update",
			Rating:      prog[i].Rating + delta,
			RatingDelta: delta,
			XPGained:    xpGained,
			Level:       newLevel,
			Quests:      deltas,
		}
	}
	return params, updates, nil
}

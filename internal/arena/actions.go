package arena

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"gridstakes/internal/game"
)

// Move applies one move for the acting user. Rejections return the error
// together with a fresh snapshot so the client can resynchronize.
func (o *Orchestrator) Move(ctx context.Context, userID, roomID string, cell int) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotInRoom
	}
	if !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}

	finished, err := sess.ApplyMove(seat.Role, cell, now)
	if err != nil {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, err
	}
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	if finished {
		o.settle(ctx, roomID, room)
		snap, _ = o.Snapshot(roomID)
		return snap, nil
	}
	o.broadcast(roomID, snap)
	return snap, nil
}

// ClaimTimeout recomputes the current mover's clock from authoritative
// timestamps. A claim that does not qualify is a no-op that hands back the
// current state.
func (o *Orchestrator) ClaimTimeout(ctx context.Context, userID, roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	if sess.SeatByUser(userID) == nil {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotInRoom
	}

	if sess.Status == game.StatusFinished {
		settled := room.settled
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		if !settled {
			// A fresh claim is the only retry path for a failed settlement.
			o.settle(ctx, roomID, room)
			snap, _ = o.Snapshot(roomID)
		}
		return snap, nil
	}

	if sess.Status != game.StatusPlaying || sess.Paused || !sess.TimeExceeded(now) {
		// Stale or premature claim: silent no-op.
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, nil
	}

	sess.FinishTimeout()
	log.Info().Str("room_id", roomID).Str("loser", string(game.Opponent(sess.Winner))).Msg("timeout claimed")
	room.mu.Unlock()

	o.settle(ctx, roomID, room)
	snap, _ := o.Snapshot(roomID)
	return snap, nil
}

// Leave removes the user from the room. Leaving live play is a forfeit;
// leaving before play refunds any escrowed ante and closes the room.
func (o *Orchestrator) Leave(ctx context.Context, userID, roomID string) error {
	room, err := o.room(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil {
		room.mu.Unlock()
		return ErrNotInRoom
	}

	if !seat.IsPlayer() {
		sess.RemoveSeat(userID)
		abandoned := sess.Abandoned()
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		o.untrackUser(userID)
		if abandoned {
			o.dispose(roomID, "abandoned")
		} else {
			o.broadcast(roomID, snap)
		}
		return nil
	}

	switch sess.Status {
	case game.StatusWaiting:
		room.mu.Unlock()
		o.untrackUser(userID)
		o.dispose(roomID, "creator_left")
		return nil

	case game.StatusConfirming:
		// Leaving revokes the confirmation; any armed start aborts and the
		// room closes with every escrowed ante refunded.
		sess.DisarmStart()
		refunds := map[string]int64{}
		for _, s := range sess.Seats {
			if s.IsPlayer() && s.Confirmed {
				refunds[s.UserID] = sess.Ante
				s.Confirmed = false
				sess.Pot -= sess.Ante
			}
		}
		room.mu.Unlock()
		for uid, amount := range refunds {
			if _, err := o.ledger.RefundAnte(ctx, uid, roomID, amount); err != nil {
				log.Error().Err(err).Str("room_id", roomID).Str("user_id", uid).Msg("ante refund failed")
			}
		}
		o.untrackUser(userID)
		o.dispose(roomID, "match_aborted")
		return nil

	case game.StatusPlaying:
		sess.Resume(now) // a paused leaver still loses; unfreeze before finishing
		sess.Forfeit(seat.Role, game.WinForfeit)
		room.mu.Unlock()
		o.settle(ctx, roomID, room)
		o.detachPlayer(room, roomID, userID)
		return nil

	default: // finished
		room.mu.Unlock()
		o.detachPlayer(room, roomID, userID)
		return nil
	}
}

// detachPlayer marks the leaving player's seat disconnected, then disposes
// the room once nobody is left.
func (o *Orchestrator) detachPlayer(room *Room, roomID, userID string) {
	room.mu.Lock()
	sess := room.session
	if seat := sess.SeatByUser(userID); seat != nil {
		seat.Connected = false
	}
	abandoned := sess.Abandoned()
	snap := sess.Snapshot(o.now())
	room.mu.Unlock()

	o.untrackUser(userID)
	if abandoned {
		o.dispose(roomID, "abandoned")
		return
	}
	o.broadcast(roomID, snap)
}

func (o *Orchestrator) untrackUser(userID string) {
	o.mu.Lock()
	delete(o.byUser, userID)
	o.mu.Unlock()
}

// Disconnect is never an error: live play pauses under a reconnect grace,
// and only the sweep converts an expired grace into a loss.
func (o *Orchestrator) Disconnect(userID string) {
	roomID, ok := o.RoomByUser(userID)
	if !ok {
		return
	}
	room, err := o.room(roomID)
	if err != nil {
		return
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil {
		room.mu.Unlock()
		return
	}
	seat.Connected = false

	if seat.IsPlayer() {
		switch sess.Status {
		case game.StatusPlaying:
			sess.Pause(now)
			room.disconnectDeadline = now.Add(o.cfg.ReconnectGrace())
			room.disconnectedUser = userID
		case game.StatusConfirming:
			// A seat dropping inside the start grace window cancels the
			// armed start; it re-arms on reconnect.
			sess.DisarmStart()
		}
	}

	// An abandoned room with escrow still out (confirming antes, a live
	// pot, or an unsettled finish) is the sweep's to unwind, not ours.
	disposable := sess.Abandoned() &&
		(sess.Status == game.StatusWaiting ||
			(sess.Status == game.StatusFinished && room.settled))
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("occupant disconnected")
	if disposable {
		o.dispose(roomID, "abandoned")
		return
	}
	o.broadcast(roomID, snap)
}

// reconnectLocked restores a returning occupant. Caller holds room.mu.
func (o *Orchestrator) reconnectLocked(room *Room, seat *game.Seat, now time.Time) game.Snapshot {
	sess := room.session
	seat.Connected = true

	if seat.IsPlayer() {
		if room.disconnectedUser == seat.UserID {
			room.disconnectedUser = ""
			room.disconnectDeadline = time.Time{}
			if sess.Status == game.StatusPlaying && sess.BothConnected() && sess.DoubleDown == nil {
				sess.Resume(now)
			}
		}
		if sess.Status == game.StatusConfirming && sess.BothConfirmed() && sess.BothConnected() && !sess.StartArmed() {
			sess.ArmStart(now, o.cfg.StartGrace())
		}
	}
	return sess.Snapshot(now)
}

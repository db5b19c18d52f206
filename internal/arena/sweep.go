package arena

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"gridstakes/internal/game"
)

// StartJanitor runs the per-room deadline sweep until ctx is cancelled.
// All timed transitions fire here: armed starts, offer expiries,
// disconnect forfeits, and abandoned-room disposal. Clients can claim a
// timeout earlier; the sweep is the backstop.
func (o *Orchestrator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = o.cfg.SweepInterval()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sweep(ctx)
			}
		}
	}()
}

func (o *Orchestrator) sweep(ctx context.Context) {
	o.mu.Lock()
	rooms := make(map[string]*Room, len(o.rooms))
	for id, room := range o.rooms {
		rooms[id] = room
	}
	o.mu.Unlock()

	for roomID, room := range rooms {
		o.sweepRoom(ctx, roomID, room)
	}
}

func (o *Orchestrator) sweepRoom(ctx context.Context, roomID string, room *Room) {
	now := o.now()

	room.mu.Lock()
	sess := room.session

	if sess.StartArmed() && now.After(sess.StartDeadline) {
		// Re-validate at fire time: a disconnect during the grace interval
		// disarms the start even if the sweep races the disarm.
		if sess.BothConfirmed() && sess.BothConnected() {
			if err := sess.StartPlay(now); err == nil {
				snap := sess.Snapshot(now)
				room.mu.Unlock()
				log.Info().Str("room_id", roomID).Msg("match started")
				o.broadcast(roomID, snap)
				return
			}
		}
		sess.DisarmStart()
	}

	if offer := sess.DoubleDown; offer != nil && !room.ddPending && offer.Expired(now) {
		sess.CloseDoubleDown("declined", now)
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		log.Info().Str("room_id", roomID).Msg("double-down expired")
		o.broadcast(roomID, snap)
		return
	}

	if offer := sess.Rematch; offer != nil && !room.rematchPending && offer.Expired(now) {
		sess.ClearRematch()
		empty := sess.SpectatorCount() == 0 && !sess.BothConnected()
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		if empty {
			o.dispose(roomID, "rematch_expired")
		}
		return
	}

	if sess.Status == game.StatusPlaying && room.disconnectedUser != "" && now.After(room.disconnectDeadline) {
		seat := sess.SeatByUser(room.disconnectedUser)
		room.disconnectedUser = ""
		room.disconnectDeadline = time.Time{}
		if seat != nil && !seat.Connected {
			sess.Resume(now)
			sess.Forfeit(seat.Role, game.WinDisconnect)
			room.mu.Unlock()
			log.Info().Str("room_id", roomID).Str("user_id", seat.UserID).Msg("disconnect grace expired, match forfeited")
			o.settle(ctx, roomID, room)
			if snap, err := o.Snapshot(roomID); err == nil {
				o.broadcast(roomID, snap)
			}
			return
		}
	}

	if sess.Abandoned() {
		switch sess.Status {
		case game.StatusWaiting:
			room.mu.Unlock()
			o.dispose(roomID, "abandoned")
			return
		case game.StatusConfirming:
			// Nobody is coming back; hand any escrowed antes back before
			// closing. A playing room instead resolves through the
			// disconnect grace forfeit above.
			sess.DisarmStart()
			refunds := map[string]int64{}
			for _, seat := range sess.Seats {
				if seat.IsPlayer() && seat.Confirmed {
					refunds[seat.UserID] = sess.Ante
					seat.Confirmed = false
					sess.Pot -= sess.Ante
				}
			}
			room.mu.Unlock()
			for uid, amount := range refunds {
				if _, err := o.ledger.RefundAnte(ctx, uid, roomID, amount); err != nil {
					log.Error().Err(err).Str("room_id", roomID).Str("user_id", uid).Msg("ante refund failed")
				}
			}
			o.dispose(roomID, "abandoned")
			return
		case game.StatusFinished:
			if room.settled {
				room.mu.Unlock()
				o.dispose(roomID, "abandoned")
				return
			}
		}
	}

	if sess.Status == game.StatusFinished && !room.settled && !room.settling {
		room.mu.Unlock()
		o.settle(ctx, roomID, room)
		return
	}

	room.mu.Unlock()
}

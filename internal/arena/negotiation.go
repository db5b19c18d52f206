package arena

import (
	"context"

	"github.com/rs/zerolog/log"

	"gridstakes/internal/game"
)

// ConfirmWager escrows the seat's ante. Confirming is idempotent: the
// pending flag is set before the debit is awaited, so a duplicate confirm
// observed while the debit is in flight never double-spends.
func (o *Orchestrator) ConfirmWager(ctx context.Context, userID, roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil || !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}
	if sess.Status != game.StatusConfirming {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, game.ErrNotConfirmed
	}
	if seat.Confirmed || seat.ConfirmPending {
		// Second confirmation from the same seat: no-op, not a double debit.
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, nil
	}
	ante := sess.Ante
	if ante == 0 {
		seat.Confirmed = true
		o.maybeArmStartLocked(room)
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, nil
	}
	seat.ConfirmPending = true
	room.mu.Unlock()

	_, debitErr := o.ledger.DebitAnte(ctx, userID, roomID, ante)

	room.mu.Lock()
	seat.ConfirmPending = false
	if debitErr != nil {
		// Insufficient funds at confirmation time is recoverable: the seat
		// simply stays unconfirmed.
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		return snap, debitErr
	}
	if _, stillOpen := o.lookup(roomID); !stillOpen || sess.Status != game.StatusConfirming {
		// The room aborted or closed while the debit was in flight; hand
		// the ante back.
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		if _, err := o.ledger.RefundAnte(ctx, userID, roomID, ante); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("ante refund failed")
		}
		return snap, game.ErrNotConfirmed
	}
	seat.Confirmed = true
	sess.Pot += ante
	o.maybeArmStartLocked(room)
	snap := sess.Snapshot(o.now())
	room.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("user_id", userID).Int64("ante", ante).Msg("wager confirmed")
	o.broadcast(roomID, snap)
	return snap, nil
}

// maybeArmStartLocked defers the transition to playing by the start grace
// interval once both seats are confirmed. Caller holds room.mu.
func (o *Orchestrator) maybeArmStartLocked(room *Room) {
	sess := room.session
	if sess.Status == game.StatusConfirming && sess.BothConfirmed() && !sess.StartArmed() {
		sess.ArmStart(o.now(), o.cfg.StartGrace())
	}
}

// OfferDoubleDown opens the once-per-match stake escalation. Play pauses
// while the offer is live.
func (o *Orchestrator) OfferDoubleDown(ctx context.Context, userID, roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil || !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}
	if _, err := sess.OpenDoubleDown(seat.Role, now, o.cfg.OfferWindow()); err != nil {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, err
	}
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("double-down offered")
	o.broadcast(roomID, snap)
	return snap, nil
}

// RespondDoubleDown resolves the live offer. Accepting debits both seats a
// second ante; declining (or expiry, which routes through the same close)
// moves no money and resumes play.
func (o *Orchestrator) RespondDoubleDown(ctx context.Context, userID, roomID string, accept bool) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil || !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}
	offer := sess.DoubleDown
	if offer == nil || room.ddPending {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, game.ErrOfferNotFound
	}
	if seat.Role == offer.From {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, game.ErrNotYourTurn
	}
	if offer.Expired(now) {
		// Authoritative deadline wins over the client's view; the sweep
		// will decline it.
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, nil
	}

	if !accept {
		sess.CloseDoubleDown("declined", now)
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, nil
	}

	ante := sess.Ante
	offererID := sess.SeatByRole(offer.From).UserID
	seq := offer.Seq
	room.ddPending = true
	room.mu.Unlock()

	escrowErr := o.escrowPair(ctx, roomID, offererID, userID, ante, true)

	room.mu.Lock()
	room.ddPending = false
	if sess.DoubleDown == nil || sess.DoubleDown.Seq != seq {
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		if escrowErr == nil && ante > 0 {
			// The offer evaporated mid-escrow (a forfeit or timeout ended
			// the match); both second antes go back.
			o.refundPair(ctx, roomID, offererID, userID, ante)
		}
		return snap, nil
	}
	if escrowErr != nil {
		sess.CloseDoubleDown("declined", o.now())
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, escrowErr
	}
	sess.Pot += 2 * ante
	sess.CloseDoubleDown("accepted", o.now())
	snap := sess.Snapshot(o.now())
	room.mu.Unlock()

	log.Info().Str("room_id", roomID).Int64("pot", snap.Pot).Msg("double-down accepted")
	o.broadcast(roomID, snap)
	return snap, nil
}

// escrowPair debits both seats one ante. If the second debit fails the
// first is refunded, so a partial escrow never survives.
func (o *Orchestrator) escrowPair(ctx context.Context, roomID, firstID, secondID string, ante int64, doubleDown bool) error {
	debit := o.ledger.DebitAnte
	refund := o.ledger.RefundAnte
	if doubleDown {
		debit = o.ledger.DebitDoubleDown
	}
	if _, err := debit(ctx, firstID, roomID, ante); err != nil {
		return err
	}
	if _, err := debit(ctx, secondID, roomID, ante); err != nil {
		if _, refundErr := refund(ctx, firstID, roomID, ante); refundErr != nil {
			log.Error().Err(refundErr).Str("room_id", roomID).Str("user_id", firstID).Msg("escrow rollback failed")
		}
		return err
	}
	return nil
}

// OfferRematch opens (or, when the other seat already offered, accepts) a
// rematch on a finished match. A counter-offer is acceptance.
func (o *Orchestrator) OfferRematch(ctx context.Context, userID, roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil || !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}
	if sess.Status == game.StatusFinished && !room.settled && sess.Pot > 0 {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrMatchUnsettled
	}
	if existing := sess.Rematch; existing != nil {
		if existing.Expired(now) {
			// Dead offer the sweep has not collected yet; a fresh action
			// supersedes it instead of bouncing off duplicate_offer.
			sess.ClearRematch()
		} else if existing.From != seat.Role {
			return o.acceptRematchLocked(ctx, room, roomID, existing.Seq)
		}
	}
	if _, err := sess.OpenRematch(seat.Role, now, o.cfg.OfferWindow()); err != nil {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, err
	}
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	o.broadcast(roomID, snap)
	return snap, nil
}

// RespondRematch accepts or declines the live rematch offer.
func (o *Orchestrator) RespondRematch(ctx context.Context, userID, roomID string, accept bool) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()
	seat := sess.SeatByUser(userID)
	if seat == nil || !seat.IsPlayer() {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, ErrNotAPlayer
	}
	offer := sess.Rematch
	if offer == nil || room.rematchPending || offer.From == seat.Role {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, game.ErrOfferNotFound
	}
	if offer.Expired(now) {
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		return snap, nil
	}
	if !accept {
		sess.ClearRematch()
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, nil
	}
	return o.acceptRematchLocked(ctx, room, roomID, offer.Seq)
}

// acceptRematchLocked re-escrows both antes and starts the new round.
// Caller holds room.mu; it is released before the escrow await and
// re-validated after.
func (o *Orchestrator) acceptRematchLocked(ctx context.Context, room *Room, roomID string, seq uint64) (game.Snapshot, error) {
	sess := room.session
	xID := sess.SeatByRole(game.RoleX).UserID
	oID := sess.SeatByRole(game.RoleO).UserID
	ante := sess.Ante
	room.rematchPending = true
	room.mu.Unlock()

	var escrowErr error
	if ante > 0 {
		escrowErr = o.escrowPair(ctx, roomID, xID, oID, ante, false)
	}

	room.mu.Lock()
	room.rematchPending = false
	if sess.Rematch == nil || sess.Rematch.Seq != seq {
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		if escrowErr == nil && ante > 0 {
			// Offer evaporated mid-escrow; hand the antes back.
			o.refundPair(ctx, roomID, xID, oID, ante)
		}
		return snap, nil
	}
	if escrowErr != nil {
		sess.ClearRematch()
		snap := sess.Snapshot(o.now())
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, escrowErr
	}

	now := o.now()
	sess.ResetForRematch(now)
	sess.Pot = 2 * ante
	room.settled = false
	room.settling = false
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	log.Info().Str("room_id", roomID).Int64("pot", snap.Pot).Msg("rematch started")
	o.broadcast(roomID, snap)
	return snap, nil
}

func (o *Orchestrator) refundPair(ctx context.Context, roomID, xID, oID string, ante int64) {
	for _, uid := range []string{xID, oID} {
		if _, err := o.ledger.RefundAnte(ctx, uid, roomID, ante); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Str("user_id", uid).Msg("escrow refund failed")
		}
	}
}

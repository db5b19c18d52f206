package game

import (
	"time"

	"gridstakes/internal/board"
)

type OfferKind string

const (
	OfferDoubleDown OfferKind = "double_down"
	OfferRematch    OfferKind = "rematch"
)

// Offer is one live timed negotiation. Seq identifies the instance so an
// expiry scheduled against offer k never resolves a successor: a room that
// already replaced or cleared the offer ignores the stale sweep.
type Offer struct {
	Kind     OfferKind
	From     board.Mark
	Seq      uint64
	Deadline time.Time
}

func (o *Offer) Expired(now time.Time) bool {
	return now.After(o.Deadline)
}

// OpenDoubleDown creates the match's single double-down offer. Only the
// seat whose turn it is may offer, once per match, and play pauses while
// the offer is live.
func (s *Session) OpenDoubleDown(role board.Mark, now time.Time, window time.Duration) (*Offer, error) {
	if s.Status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if s.DoubleDownUsed != "" {
		return nil, ErrDoubleDownUsed
	}
	if s.DoubleDown != nil {
		return nil, ErrDuplicateOffer
	}
	if role != s.Turn {
		return nil, ErrNotYourTurn
	}
	offer := &Offer{Kind: OfferDoubleDown, From: role, Seq: s.nextOfferSeq(), Deadline: now.Add(window)}
	s.DoubleDown = offer
	s.Pause(now)
	return offer, nil
}

// CloseDoubleDown clears the live offer and records how it resolved. Pot
// movement is the caller's business. The clock resumes only when no
// disconnect pause is outstanding; otherwise the reconnect path lifts it.
func (s *Session) CloseDoubleDown(used string, now time.Time) {
	s.DoubleDown = nil
	s.DoubleDownUsed = used
	if s.Status == StatusPlaying && s.BothConnected() {
		s.Resume(now)
	}
}

// OpenRematch creates a rematch offer on a finished match. A counter-offer
// from the other seat is handled by the caller as acceptance.
func (s *Session) OpenRematch(role board.Mark, now time.Time, window time.Duration) (*Offer, error) {
	if s.Status != StatusFinished {
		return nil, ErrNotFinished
	}
	if s.Rematch != nil {
		return nil, ErrDuplicateOffer
	}
	offer := &Offer{Kind: OfferRematch, From: role, Seq: s.nextOfferSeq(), Deadline: now.Add(window)}
	s.Rematch = offer
	return offer, nil
}

func (s *Session) ClearRematch() {
	s.Rematch = nil
}

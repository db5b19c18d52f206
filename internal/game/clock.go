package game

import "time"

// Pause freezes the turn clock. Disconnects and live double-down offers
// both route through here; a second pause while already paused keeps the
// original anchor.
func (s *Session) Pause(now time.Time) {
	if s.Paused {
		return
	}
	s.Paused = true
	s.PausedAt = now
}

// Resume lifts the pause and shifts the clock anchor forward by the paused
// interval, so paused wall-time never counts against the mover.
func (s *Session) Resume(now time.Time) {
	if !s.Paused {
		return
	}
	s.LastMoveClockStart = s.LastMoveClockStart.Add(now.Sub(s.PausedAt))
	s.Paused = false
	s.PausedAt = time.Time{}
}

// TurnElapsed is the unpaused wall-clock time charged to the current mover.
func (s *Session) TurnElapsed(now time.Time) time.Duration {
	if s.LastMoveClockStart.IsZero() {
		return 0
	}
	if s.Paused {
		return s.PausedAt.Sub(s.LastMoveClockStart)
	}
	return now.Sub(s.LastMoveClockStart)
}

// TurnRemaining is the time the current mover has left: the fixed per-turn
// allowance, or the seat's blitz bank.
func (s *Session) TurnRemaining(now time.Time) time.Duration {
	allowance := s.Config.TurnDuration
	if s.Config.Blitz {
		if seat := s.SeatByRole(s.Turn); seat != nil {
			allowance = seat.Bank
		}
	}
	remaining := allowance - s.TurnElapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeExceeded recomputes the timeout condition from authoritative
// timestamps only. Client-supplied durations are never consulted.
func (s *Session) TimeExceeded(now time.Time) bool {
	if s.Status != StatusPlaying {
		return false
	}
	elapsed := s.TurnElapsed(now)
	if s.Config.Blitz {
		seat := s.SeatByRole(s.Turn)
		return seat != nil && elapsed >= seat.Bank
	}
	return elapsed >= s.Config.TurnDuration
}

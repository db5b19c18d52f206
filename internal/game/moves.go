package game

import (
	"time"

	"gridstakes/internal/board"
)

// ApplyMove validates and applies one move for the acting role. Rejections
// leave the session untouched; the caller resynchronizes the client with a
// snapshot.
func (s *Session) ApplyMove(role board.Mark, cell int, now time.Time) (bool, error) {
	if s.Status != StatusPlaying {
		return false, ErrNotPlaying
	}
	if s.DoubleDown != nil {
		return false, ErrOfferPending
	}
	if s.Paused {
		return false, ErrPaused
	}
	if role != s.Turn {
		return false, ErrNotYourTurn
	}
	if !s.Board.InBounds(cell) {
		return false, ErrInvalidCell
	}
	if !s.Board.Playable(cell) {
		return false, ErrCellOccupied
	}

	if s.Config.Blitz {
		seat := s.SeatByRole(role)
		elapsed := s.TurnElapsed(now)
		if elapsed >= seat.Bank {
			// Bank already empty; the move loses on time instead of landing.
			seat.Bank = 0
			s.finish(Opponent(role), false, WinTimeout)
			return true, nil
		}
		seat.Bank -= elapsed
	}

	s.Board.Set(cell, role)
	s.Moves = append(s.Moves, Move{Role: role, Cell: cell, At: now})

	out := board.Detect(s.Board, s.Config.WinLength)
	switch {
	case out.Winner != board.Empty:
		s.finish(out.Winner, false, WinStandard)
	case out.Draw:
		s.finish(board.Empty, true, WinStandard)
	default:
		s.Turn = Opponent(role)
		s.LastMoveClockStart = now
	}
	return s.Status == StatusFinished, nil
}

// FinishTimeout declares the current mover lost on time. The caller has
// already re-validated TimeExceeded against authoritative clocks.
func (s *Session) FinishTimeout() {
	if s.Status != StatusPlaying {
		return
	}
	s.finish(Opponent(s.Turn), false, WinTimeout)
}

// Forfeit ends the match against the named role.
func (s *Session) Forfeit(role board.Mark, reason WinReason) {
	if s.Status != StatusPlaying {
		return
	}
	s.finish(Opponent(role), false, reason)
}

func (s *Session) finish(winner board.Mark, draw bool, reason WinReason) {
	s.Status = StatusFinished
	s.Winner = winner
	s.Draw = draw
	s.Reason = reason
	s.DoubleDown = nil
	s.Paused = false
	s.PausedAt = time.Time{}
	s.DisarmStart()
}

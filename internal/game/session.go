package game

import (
	"errors"
	"time"

	"gridstakes/internal/board"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusConfirming Status = "confirming_wager"
	StatusPlaying    Status = "playing"
	StatusFinished   Status = "finished"
)

type WinReason string

const (
	WinStandard   WinReason = "standard"
	WinForfeit    WinReason = "forfeit"
	WinTimeout    WinReason = "timeout"
	WinDisconnect WinReason = "disconnect"
)

var (
	ErrNotPlaying     = errors.New("not_playing")
	ErrPaused         = errors.New("match_paused")
	ErrNotYourTurn    = errors.New("not_your_turn")
	ErrCellOccupied   = errors.New("cell_occupied")
	ErrInvalidCell    = errors.New("invalid_cell")
	ErrRoomFull       = errors.New("room_full")
	ErrNotFinished    = errors.New("not_finished")
	ErrDuplicateOffer = errors.New("duplicate_offer")
	ErrDoubleDownUsed = errors.New("double_down_used")
	ErrOfferPending   = errors.New("offer_pending")
	ErrOfferNotFound  = errors.New("offer_not_found")
	ErrNotConfirmed   = errors.New("not_confirmed")
)

// Role aliases for callers that never touch board cells directly.
type Role = board.Mark

const (
	RoleX = board.MarkX
	RoleO = board.MarkO
)

// Config fixes the variant of a single match room.
type Config struct {
	BoardSize    int
	WinLength    int
	Obstacles    []int
	Blitz        bool
	TurnDuration time.Duration
	BlitzBank    time.Duration
	Ante         int64
}

// Seat is a role-bound occupant: a player (X or O) or a spectator
// (Role == board.Empty).
type Seat struct {
	UserID    string
	Name      string
	Role      board.Mark
	Connected bool

	// Wager confirmation state. ConfirmPending is set before the escrow
	// debit is awaited so a duplicate confirm observed mid-await is a
	// no-op instead of a double debit.
	Confirmed      bool
	ConfirmPending bool

	// Remaining blitz bank; unused in per-turn timer mode.
	Bank time.Duration
}

func (s *Seat) IsPlayer() bool {
	return s.Role == board.MarkX || s.Role == board.MarkO
}

type Move struct {
	Role board.Mark `json:"role"`
	Cell int        `json:"cell"`
	At   time.Time  `json:"at"`
}

// Session is the authoritative state of one match room. It carries no
// locking itself; the orchestrator serializes all access per room.
type Session struct {
	ID     string
	Status Status
	Config Config

	Board  *board.Board
	Moves  []Move
	Turn   board.Mark
	Winner board.Mark
	Draw   bool
	Reason WinReason

	Seats []*Seat

	Ante int64
	Pot  int64

	Paused   bool
	PausedAt time.Time

	DoubleDown     *Offer
	Rematch        *Offer
	DoubleDownUsed string // "", "accepted", "declined"

	// LastMoveClockStart anchors the running turn clock. While paused no
	// clock time elapses; Resume shifts this anchor by the paused interval.
	LastMoveClockStart time.Time

	// StartDeadline is the armed grace-window start of play; zero when no
	// start is pending.
	StartDeadline time.Time

	offerSeq  uint64
	CreatedAt time.Time
}

func NewSession(id string, cfg Config, now time.Time) *Session {
	return &Session{
		ID:        id,
		Status:    StatusWaiting,
		Config:    cfg,
		Board:     board.New(cfg.BoardSize, cfg.Obstacles),
		Turn:      board.MarkX,
		Ante:      cfg.Ante,
		CreatedAt: now,
	}
}

// AddPlayer seats the user on the first free player role. X is taken by the
// creator; the second player gets O and the session moves to wager
// confirmation.
func (s *Session) AddPlayer(userID, name string) (*Seat, error) {
	if s.SeatByRole(board.MarkX) == nil {
		seat := &Seat{UserID: userID, Name: name, Role: board.MarkX, Connected: true, Bank: s.Config.BlitzBank}
		s.Seats = append(s.Seats, seat)
		return seat, nil
	}
	if s.SeatByRole(board.MarkO) == nil {
		seat := &Seat{UserID: userID, Name: name, Role: board.MarkO, Connected: true, Bank: s.Config.BlitzBank}
		s.Seats = append(s.Seats, seat)
		if s.Status == StatusWaiting {
			s.Status = StatusConfirming
		}
		return seat, nil
	}
	return nil, ErrRoomFull
}

func (s *Session) AddSpectator(userID, name string) *Seat {
	seat := &Seat{UserID: userID, Name: name, Connected: true}
	s.Seats = append(s.Seats, seat)
	return seat
}

func (s *Session) SeatByUser(userID string) *Seat {
	for _, seat := range s.Seats {
		if seat.UserID == userID {
			return seat
		}
	}
	return nil
}

func (s *Session) SeatByRole(role board.Mark) *Seat {
	for _, seat := range s.Seats {
		if seat.Role == role {
			return seat
		}
	}
	return nil
}

func (s *Session) RemoveSeat(userID string) {
	for i, seat := range s.Seats {
		if seat.UserID == userID {
			s.Seats = append(s.Seats[:i], s.Seats[i+1:]...)
			return
		}
	}
}

func Opponent(role board.Mark) board.Mark {
	if role == board.MarkX {
		return board.MarkO
	}
	return board.MarkX
}

func (s *Session) BothConfirmed() bool {
	x := s.SeatByRole(board.MarkX)
	o := s.SeatByRole(board.MarkO)
	return x != nil && o != nil && x.Confirmed && o.Confirmed
}

func (s *Session) BothConnected() bool {
	x := s.SeatByRole(board.MarkX)
	o := s.SeatByRole(board.MarkO)
	return x != nil && o != nil && x.Connected && o.Connected
}

// ArmStart schedules the deferred confirming_wager -> playing transition.
func (s *Session) ArmStart(now time.Time, grace time.Duration) {
	s.StartDeadline = now.Add(grace)
}

func (s *Session) DisarmStart() {
	s.StartDeadline = time.Time{}
}

func (s *Session) StartArmed() bool {
	return !s.StartDeadline.IsZero()
}

// StartPlay re-validates the deferred transition and begins the match.
func (s *Session) StartPlay(now time.Time) error {
	if s.Status != StatusConfirming {
		return ErrNotConfirmed
	}
	if !s.BothConfirmed() {
		return ErrNotConfirmed
	}
	s.Status = StatusPlaying
	s.Turn = board.MarkX
	s.LastMoveClockStart = now
	s.DisarmStart()
	return nil
}

// SpectatorCount counts seats without a player role.
func (s *Session) SpectatorCount() int {
	n := 0
	for _, seat := range s.Seats {
		if !seat.IsPlayer() {
			n++
		}
	}
	return n
}

// Abandoned reports whether the room holds no connected occupant at all:
// every player seat disconnected and no spectators left.
func (s *Session) Abandoned() bool {
	for _, seat := range s.Seats {
		if !seat.IsPlayer() {
			return false
		}
		if seat.Connected {
			return false
		}
	}
	return true
}

func (s *Session) nextOfferSeq() uint64 {
	s.offerSeq++
	return s.offerSeq
}

// ResetForRematch re-initializes the board, move log, result, pause state,
// and clocks for a fresh round between the same seats. The caller escrows
// the new pot before invoking this.
func (s *Session) ResetForRematch(now time.Time) {
	s.Board = board.New(s.Config.BoardSize, s.Config.Obstacles)
	s.Moves = nil
	s.Winner = board.Empty
	s.Draw = false
	s.Reason = ""
	s.Paused = false
	s.PausedAt = time.Time{}
	s.DoubleDown = nil
	s.Rematch = nil
	s.DoubleDownUsed = ""
	s.Status = StatusPlaying
	s.Turn = board.MarkX
	s.LastMoveClockStart = now
	for _, seat := range s.Seats {
		if seat.IsPlayer() {
			seat.Bank = s.Config.BlitzBank
		}
	}
}

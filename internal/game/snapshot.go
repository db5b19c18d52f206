package game

import "time"

// Snapshot is the full room-wide view broadcast on every state change.
// Clients resynchronize from it after any rejected action.
type Snapshot struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	Status    string `json:"status"`
	BoardSize int    `json:"board_size"`
	WinLength int    `json:"win_length"`
	Blitz     bool   `json:"blitz"`

	Cells []string       `json:"cells"`
	Moves []Move         `json:"moves,omitempty"`
	Turn  string         `json:"turn,omitempty"`
	Seats []SeatSnapshot `json:"seats"`

	Winner    string `json:"winner,omitempty"`
	Draw      bool   `json:"draw,omitempty"`
	WinReason string `json:"win_reason,omitempty"`

	Ante int64 `json:"ante"`
	Pot  int64 `json:"pot"`

	Paused          bool  `json:"paused"`
	TurnRemainingMS int64 `json:"turn_remaining_ms"`
	StartsInMS      int64 `json:"starts_in_ms,omitempty"`

	DoubleDown     *OfferSnapshot `json:"double_down,omitempty"`
	Rematch        *OfferSnapshot `json:"rematch,omitempty"`
	DoubleDownUsed string         `json:"double_down_used,omitempty"`
}

type SeatSnapshot struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Connected bool   `json:"connected"`
	Confirmed bool   `json:"confirmed"`
	BankMS    int64  `json:"bank_ms,omitempty"`
}

type OfferSnapshot struct {
	Kind      string `json:"kind"`
	From      string `json:"from"`
	ExpiresMS int64  `json:"expires_ms"`
}

func (s *Session) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Type:            "state",
		RoomID:          s.ID,
		Status:          string(s.Status),
		BoardSize:       s.Config.BoardSize,
		WinLength:       s.Config.WinLength,
		Blitz:           s.Config.Blitz,
		Cells:           s.Board.Strings(),
		Moves:           s.Moves,
		Winner:          string(s.Winner),
		Draw:            s.Draw,
		WinReason:       string(s.Reason),
		Ante:            s.Ante,
		Pot:             s.Pot,
		Paused:          s.Paused,
		DoubleDownUsed:  s.DoubleDownUsed,
		TurnRemainingMS: 0,
	}
	if s.Status == StatusPlaying {
		snap.Turn = string(s.Turn)
		snap.TurnRemainingMS = s.TurnRemaining(now).Milliseconds()
	}
	if s.StartArmed() {
		startsIn := s.StartDeadline.Sub(now)
		if startsIn < 0 {
			startsIn = 0
		}
		snap.StartsInMS = startsIn.Milliseconds()
	}
	for _, seat := range s.Seats {
		ss := SeatSnapshot{
			UserID:    seat.UserID,
			Name:      seat.Name,
			Role:      string(seat.Role),
			Connected: seat.Connected,
			Confirmed: seat.Confirmed,
		}
		if s.Config.Blitz && seat.IsPlayer() {
			ss.BankMS = seat.Bank.Milliseconds()
		}
		snap.Seats = append(snap.Seats, ss)
	}
	if s.DoubleDown != nil {
		snap.DoubleDown = offerSnapshot(s.DoubleDown, now)
	}
	if s.Rematch != nil {
		snap.Rematch = offerSnapshot(s.Rematch, now)
	}
	return snap
}

func offerSnapshot(o *Offer, now time.Time) *OfferSnapshot {
	expires := o.Deadline.Sub(now)
	if expires < 0 {
		expires = 0
	}
	return &OfferSnapshot{Kind: string(o.Kind), From: string(o.From), ExpiresMS: expires.Milliseconds()}
}

package arena

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gridstakes/internal/config"
	"gridstakes/internal/game"
	"gridstakes/internal/ledger"
	"gridstakes/internal/progression"
	"gridstakes/internal/store"
)

var (
	ErrRoomNotFound       = errors.New("room_not_found")
	ErrNotInRoom          = errors.New("not_in_room")
	ErrNotAPlayer         = errors.New("not_a_player")
	ErrGuestsSpectateOnly = errors.New("guests_spectate_only")
	ErrAlreadyInRoom      = errors.New("already_in_room")
	ErrMatchUnsettled     = errors.New("match_unsettled")
)

// Store is the slice of the persistent store the orchestrator consumes.
type Store interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error)
	GetProgression(ctx context.Context, userID string) (*store.Progression, error)
	SettleMatch(ctx context.Context, p store.SettleParams) error
}

// Broadcaster is the transport sink: room-wide snapshots plus targeted
// settlement messages.
type Broadcaster interface {
	BroadcastState(roomID string, snap game.Snapshot)
	SendTo(userID string, msg any)
	RoomClosed(roomID, reason string)
}

// Leaderboard is the post-settlement rating sink; best-effort, outside the
// settlement transaction.
type Leaderboard interface {
	RecordRating(ctx context.Context, userID, name string, rating int) error
}

// Room pairs a session with its orchestration flags. The session itself is
// lock-free; mu serializes every logical round of action processing
// against it.
type Room struct {
	mu      sync.Mutex
	session *game.Session
	name    string

	// Settlement idempotency: settling is set before the store transaction
	// is awaited so a duplicate finish observed mid-await is a no-op.
	settling bool
	settled  bool

	// Double-down / rematch accept guards across the escrow await.
	ddPending      bool
	rematchPending bool

	// Reconnect grace while a disconnect pause is live.
	disconnectDeadline time.Time
	disconnectedUser   string
}

// Orchestrator owns every live match room. All lookups go through it.
type Orchestrator struct {
	store  Store
	ledger *ledger.Ledger
	cfg    config.GameConfig

	bc     Broadcaster
	lb     Leaderboard
	quests []progression.QuestDef

	mu     sync.Mutex
	rooms  map[string]*Room
	byUser map[string]string

	now func() time.Time
}

func New(st Store, led *ledger.Ledger, cfg config.GameConfig) *Orchestrator {
	return &Orchestrator{
		store:  st,
		ledger: led,
		cfg:    cfg,
		rooms:  map[string]*Room{},
		byUser: map[string]string{},
		quests: nil,
		now:    time.Now,
	}
}

func (o *Orchestrator) SetBroadcaster(bc Broadcaster) { o.bc = bc }
func (o *Orchestrator) SetLeaderboard(lb Leaderboard) { o.lb = lb }
func (o *Orchestrator) SetQuests(defs []progression.QuestDef) {
	o.quests = defs
}

// RoomParams is the caller-chosen variant for a new room; zero values fall
// back to the configured defaults.
type RoomParams struct {
	Name      string
	BoardSize int
	WinLength int
	Obstacles []int
	Blitz     bool
	Ante      int64
}

func (o *Orchestrator) sessionConfig(p RoomParams) game.Config {
	cfg := game.Config{
		BoardSize:    p.BoardSize,
		WinLength:    p.WinLength,
		Obstacles:    p.Obstacles,
		Blitz:        p.Blitz,
		TurnDuration: o.cfg.TurnDuration(),
		BlitzBank:    o.cfg.BlitzBank(),
		Ante:         p.Ante,
	}
	if cfg.BoardSize <= 0 {
		cfg.BoardSize = o.cfg.DefaultBoardSize
	}
	if cfg.WinLength <= 0 || cfg.WinLength > cfg.BoardSize {
		cfg.WinLength = o.cfg.DefaultWinLength
	}
	if cfg.Ante < 0 {
		cfg.Ante = 0
	}
	return cfg
}

// CreateRoom opens a new room with the creator seated as X. The ante is
// checked against the creator's balance at join time; the actual debit
// happens only at confirmation.
func (o *Orchestrator) CreateRoom(ctx context.Context, userID, userName string, guest bool, p RoomParams) (string, game.Snapshot, error) {
	if guest {
		return "", game.Snapshot{}, ErrGuestsSpectateOnly
	}
	o.mu.Lock()
	if _, ok := o.byUser[userID]; ok {
		o.mu.Unlock()
		return "", game.Snapshot{}, ErrAlreadyInRoom
	}
	o.mu.Unlock()

	cfg := o.sessionConfig(p)
	if cfg.Ante > 0 {
		bal, err := o.store.GetBalance(ctx, userID)
		if err != nil {
			return "", game.Snapshot{}, err
		}
		if bal < cfg.Ante {
			return "", game.Snapshot{}, store.ErrInsufficientFunds
		}
	}

	now := o.now()
	roomID := store.NewID()
	sess := game.NewSession(roomID, cfg, now)
	if _, err := sess.AddPlayer(userID, userName); err != nil {
		return "", game.Snapshot{}, err
	}
	room := &Room{session: sess, name: p.Name}

	o.mu.Lock()
	o.rooms[roomID] = room
	o.byUser[userID] = roomID
	o.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("room created")
	return roomID, sess.Snapshot(now), nil
}

// JoinRoom seats the user. Registered users take the free player seat when
// one exists; guests and third parties become spectators. A user already
// seated in the room reconnects instead.
func (o *Orchestrator) JoinRoom(ctx context.Context, userID, userName string, guest bool, roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}

	room.mu.Lock()
	sess := room.session
	now := o.now()

	if seat := sess.SeatByUser(userID); seat != nil {
		snap := o.reconnectLocked(room, seat, now)
		room.mu.Unlock()
		o.broadcast(roomID, snap)
		return snap, nil
	}

	if guest || (sess.SeatByRole(game.RoleX) != nil && sess.SeatByRole(game.RoleO) != nil) {
		sess.AddSpectator(userID, userName)
		snap := sess.Snapshot(now)
		room.mu.Unlock()
		o.trackUser(userID, roomID)
		o.broadcast(roomID, snap)
		return snap, nil
	}

	// Second player: re-check balance before seating.
	if sess.Ante > 0 {
		room.mu.Unlock()
		bal, err := o.store.GetBalance(ctx, userID)
		if err != nil {
			return game.Snapshot{}, err
		}
		if bal < sess.Ante {
			return game.Snapshot{}, store.ErrInsufficientFunds
		}
		room.mu.Lock()
	}
	if _, err := sess.AddPlayer(userID, userName); err != nil {
		// Seat raced away while the balance check was in flight.
		sess.AddSpectator(userID, userName)
	}
	snap := sess.Snapshot(now)
	room.mu.Unlock()

	o.trackUser(userID, roomID)
	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("player joined")
	o.broadcast(roomID, snap)
	return snap, nil
}

func (o *Orchestrator) trackUser(userID, roomID string) {
	o.mu.Lock()
	o.byUser[userID] = roomID
	o.mu.Unlock()
}

func (o *Orchestrator) lookup(roomID string) (*Room, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ok := o.rooms[roomID]
	return room, ok
}

func (o *Orchestrator) room(roomID string) (*Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ok := o.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RoomByUser resolves the room the user currently occupies.
func (o *Orchestrator) RoomByUser(userID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, ok := o.byUser[userID]
	return roomID, ok
}

// RoomInfo is one row of the matchmaking browse list.
type RoomInfo struct {
	RoomID     string `json:"room_id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
	Ante       int64  `json:"ante"`
	Blitz      bool   `json:"blitz"`
	BoardSize  int    `json:"board_size"`
	WinLength  int    `json:"win_length"`
}

func (o *Orchestrator) ListRooms() []RoomInfo {
	o.mu.Lock()
	rooms := make(map[string]*Room, len(o.rooms))
	for id, r := range o.rooms {
		rooms[id] = r
	}
	o.mu.Unlock()

	out := []RoomInfo{}
	for id, room := range rooms {
		room.mu.Lock()
		sess := room.session
		players := 0
		if sess.SeatByRole(game.RoleX) != nil {
			players++
		}
		if sess.SeatByRole(game.RoleO) != nil {
			players++
		}
		out = append(out, RoomInfo{
			RoomID:     id,
			Name:       room.name,
			Status:     string(sess.Status),
			Players:    players,
			Spectators: sess.SpectatorCount(),
			Ante:       sess.Ante,
			Blitz:      sess.Config.Blitz,
			BoardSize:  sess.Config.BoardSize,
			WinLength:  sess.Config.WinLength,
		})
		room.mu.Unlock()
	}
	return out
}

// Snapshot returns the authoritative view of a room.
func (o *Orchestrator) Snapshot(roomID string) (game.Snapshot, error) {
	room, err := o.room(roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.session.Snapshot(o.now()), nil
}

func (o *Orchestrator) broadcast(roomID string, snap game.Snapshot) {
	if o.bc != nil {
		o.bc.BroadcastState(roomID, snap)
	}
}

func (o *Orchestrator) sendTo(userID string, msg any) {
	if o.bc != nil {
		o.bc.SendTo(userID, msg)
	}
}

// dispose removes the room from the registry and drops every occupant
// mapping. Callers hold no room lock.
func (o *Orchestrator) dispose(roomID, reason string) {
	o.mu.Lock()
	if _, ok := o.rooms[roomID]; !ok {
		o.mu.Unlock()
		return
	}
	delete(o.rooms, roomID)
	for userID, rid := range o.byUser {
		if rid == roomID {
			delete(o.byUser, userID)
		}
	}
	o.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("reason", reason).Msg("room disposed")
	if o.bc != nil {
		o.bc.RoomClosed(roomID, reason)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gridstakes/internal/arena"
	"gridstakes/internal/game"
	"gridstakes/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Users is the slice of the store the gateway needs for authentication.
type Users interface {
	GetUserByToken(ctx context.Context, token string) (*store.User, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetProgression(ctx context.Context, userID string) (*store.Progression, error)
}

// Gateway owns every live websocket connection and is the orchestrator's
// Broadcaster. One connection per user: a second connection for the same
// user replaces the first.
type Gateway struct {
	orch  *arena.Orchestrator
	users Users

	mu     sync.Mutex
	byUser map[string]*client
	rooms  map[string]map[*client]bool
}

func NewGateway(orch *arena.Orchestrator, users Users) *Gateway {
	return &Gateway{
		orch:   orch,
		users:  users,
		byUser: map[string]*client{},
		rooms:  map[string]map[*client]bool{},
	}
}

type client struct {
	connID string
	userID string
	name   string
	guest  bool
	roomID string

	gw   *Gateway
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Handler upgrades the HTTP request and runs the connection until it drops.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		c := &client{
			connID: uuid.New().String(),
			gw:     g,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
		}
		go c.writePump()
		c.readPump(r.Context())
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.gw.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.connID).Msg("websocket read error")
			}
			return
		}
		env, err := decode(data)
		if err != nil {
			c.sendError("", "invalid_message")
			continue
		}
		if c.userID == "" && env.Type != msgAuth {
			c.sendError(env.ReqID, "not_authenticated")
			continue
		}
		c.gw.handle(ctx, c, env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; drop the connection rather than the whole hub.
		c.closed = true
		close(c.send)
	}
}

func (c *client) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("websocket marshal failed")
		return
	}
	c.enqueue(data)
}

func (c *client) sendError(reqID, code string) {
	c.sendJSON(errorMessage{Type: "error", ReqID: reqID, Code: code})
}

func (g *Gateway) handle(ctx context.Context, c *client, env Envelope) {
	switch env.Type {
	case msgAuth:
		g.handleAuth(ctx, c, env)
	case msgCreateRoom:
		p := arena.RoomParams{
			Name:      env.RoomName,
			BoardSize: env.BoardSize,
			WinLength: env.WinLength,
			Obstacles: env.Obstacles,
			Blitz:     env.Blitz,
			Ante:      env.Ante,
		}
		roomID, snap, err := g.orch.CreateRoom(ctx, c.userID, c.name, c.guest, p)
		if err != nil {
			c.sendError(env.ReqID, errCode(err))
			return
		}
		g.joinRoomSet(c, roomID)
		c.sendJSON(ackMessage{Type: "ack", ReqID: env.ReqID, Action: env.Type, RoomID: roomID})
		c.sendJSON(snap)
	case msgJoinRoom:
		snap, err := g.orch.JoinRoom(ctx, c.userID, c.name, c.guest, env.RoomID)
		if err != nil {
			c.sendError(env.ReqID, errCode(err))
			return
		}
		g.joinRoomSet(c, env.RoomID)
		c.sendJSON(ackMessage{Type: "ack", ReqID: env.ReqID, Action: env.Type, RoomID: env.RoomID})
		c.sendJSON(snap)
	case msgConfirmWager:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.ConfirmWager(ctx, c.userID, roomID)
		})
	case msgMove:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.Move(ctx, c.userID, roomID, env.Cell)
		})
	case msgDoubleDown:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.OfferDoubleDown(ctx, c.userID, roomID)
		})
	case msgDoubleDownResponse:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.RespondDoubleDown(ctx, c.userID, roomID, env.Accept)
		})
	case msgRematch:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.OfferRematch(ctx, c.userID, roomID)
		})
	case msgRematchResponse:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.RespondRematch(ctx, c.userID, roomID, env.Accept)
		})
	case msgClaimTimeout:
		g.roomAction(ctx, c, env, func(roomID string) (game.Snapshot, error) {
			return g.orch.ClaimTimeout(ctx, c.userID, roomID)
		})
	case msgLeave:
		roomID, ok := g.orch.RoomByUser(c.userID)
		if !ok {
			c.sendError(env.ReqID, errCode(arena.ErrNotInRoom))
			return
		}
		if err := g.orch.Leave(ctx, c.userID, roomID); err != nil {
			c.sendError(env.ReqID, errCode(err))
			return
		}
		g.leaveRoomSet(c)
		c.sendJSON(ackMessage{Type: "ack", ReqID: env.ReqID, Action: env.Type})
	case msgListRooms:
		c.sendJSON(roomListMessage{Type: "rooms", ReqID: env.ReqID, Rooms: g.orch.ListRooms()})
	default:
		c.sendError(env.ReqID, "unknown_type")
	}
}

// roomAction resolves the sender's room and runs one orchestrator call.
// On rejection the client gets the error code plus a fresh snapshot to
// resynchronize from.
func (g *Gateway) roomAction(ctx context.Context, c *client, env Envelope, fn func(roomID string) (game.Snapshot, error)) {
	roomID, ok := g.orch.RoomByUser(c.userID)
	if !ok {
		c.sendError(env.ReqID, errCode(arena.ErrNotInRoom))
		return
	}
	snap, err := fn(roomID)
	if err != nil {
		c.sendError(env.ReqID, errCode(err))
		c.sendJSON(snap)
		return
	}
	c.sendJSON(ackMessage{Type: "ack", ReqID: env.ReqID, Action: env.Type, RoomID: roomID})
}

func (g *Gateway) handleAuth(ctx context.Context, c *client, env Envelope) {
	if c.userID != "" {
		c.sendError(env.ReqID, "already_authenticated")
		return
	}
	if env.Guest {
		c.userID = "guest:" + c.connID
		c.name = env.Name
		if c.name == "" {
			c.name = "guest"
		}
		c.guest = true
		g.register(c)
		c.sendJSON(welcomeMessage{Type: "welcome", UserID: c.userID, Name: c.name, Guest: true})
		return
	}

	user, err := g.users.GetUserByToken(ctx, env.Token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError(env.ReqID, "invalid_token")
		} else {
			c.sendError(env.ReqID, "auth_failed")
		}
		return
	}
	c.userID = user.ID
	c.name = user.Name
	g.register(c)

	welcome := welcomeMessage{Type: "welcome", UserID: user.ID, Name: user.Name}
	if balance, err := g.users.GetBalance(ctx, user.ID); err == nil {
		welcome.Balance = balance
	}
	if prog, err := g.users.GetProgression(ctx, user.ID); err == nil {
		welcome.Rating = prog.Rating
		welcome.Level = prog.Level
	}
	c.sendJSON(welcome)

	// A returning player lands straight back in their room.
	if roomID, ok := g.orch.RoomByUser(user.ID); ok {
		if snap, err := g.orch.JoinRoom(ctx, user.ID, user.Name, false, roomID); err == nil {
			g.joinRoomSet(c, roomID)
			c.sendJSON(snap)
		}
	}
}

// register installs the client as the user's live connection, closing any
// previous one.
func (g *Gateway) register(c *client) {
	g.mu.Lock()
	prev := g.byUser[c.userID]
	g.byUser[c.userID] = c
	g.mu.Unlock()
	if prev != nil && prev != c {
		prev.conn.Close()
	}
	log.Info().Str("conn_id", c.connID).Str("user_id", c.userID).Bool("guest", c.guest).Msg("websocket authenticated")
}

func (g *Gateway) joinRoomSet(c *client, roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c.roomID != "" {
		if set := g.rooms[c.roomID]; set != nil {
			delete(set, c)
		}
	}
	c.roomID = roomID
	set := g.rooms[roomID]
	if set == nil {
		set = map[*client]bool{}
		g.rooms[roomID] = set
	}
	set[c] = true
}

func (g *Gateway) leaveRoomSet(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c.roomID == "" {
		return
	}
	if set := g.rooms[c.roomID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(g.rooms, c.roomID)
		}
	}
	c.roomID = ""
}

// dropClient runs when the read pump exits for any reason.
func (g *Gateway) dropClient(c *client) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()

	if c.userID == "" {
		return
	}
	g.mu.Lock()
	replaced := g.byUser[c.userID] != c
	if !replaced {
		delete(g.byUser, c.userID)
	}
	if c.roomID != "" {
		if set := g.rooms[c.roomID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(g.rooms, c.roomID)
			}
		}
	}
	g.mu.Unlock()

	// A replaced connection is not a disconnect: the user is still here.
	if !replaced {
		g.orch.Disconnect(c.userID)
		log.Info().Str("conn_id", c.connID).Str("user_id", c.userID).Msg("websocket dropped")
	}
}

// BroadcastState fans the room snapshot out to every connection in the room.
func (g *Gateway) BroadcastState(roomID string, snap game.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("snapshot marshal failed")
		return
	}
	g.mu.Lock()
	targets := make([]*client, 0, len(g.rooms[roomID]))
	for c := range g.rooms[roomID] {
		targets = append(targets, c)
	}
	g.mu.Unlock()
	for _, c := range targets {
		c.enqueue(data)
	}
}

// SendTo delivers a targeted message to the user's live connection, if any.
func (g *Gateway) SendTo(userID string, msg any) {
	g.mu.Lock()
	c := g.byUser[userID]
	g.mu.Unlock()
	if c != nil {
		c.sendJSON(msg)
	}
}

// RoomClosed notifies and detaches every connection in the room.
func (g *Gateway) RoomClosed(roomID, reason string) {
	msg := roomClosedMessage{Type: "room_closed", RoomID: roomID, Reason: reason}
	g.mu.Lock()
	targets := make([]*client, 0, len(g.rooms[roomID]))
	for c := range g.rooms[roomID] {
		targets = append(targets, c)
		c.roomID = ""
	}
	delete(g.rooms, roomID)
	g.mu.Unlock()
	for _, c := range targets {
		c.sendJSON(msg)
	}
}

// errCode maps an orchestrator error to its wire code. Sentinels already
// read as snake_case codes.
func errCode(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

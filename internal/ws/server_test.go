package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridstakes/internal/arena"
	"gridstakes/internal/config"
	"gridstakes/internal/game"
	"gridstakes/internal/ledger"
	"gridstakes/internal/store"
	"gridstakes/internal/testutil"
)

type fakeUsers struct {
	byToken map[string]*store.User
	mem     *testutil.MemStore
}

func (f *fakeUsers) GetUserByToken(ctx context.Context, token string) (*store.User, error) {
	u, ok := f.byToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetBalance(ctx context.Context, userID string) (int64, error) {
	return f.mem.GetBalance(ctx, userID)
}

func (f *fakeUsers) GetProgression(ctx context.Context, userID string) (*store.Progression, error) {
	return f.mem.GetProgression(ctx, userID)
}

func newTestGateway(t *testing.T) (*httptest.Server, *arena.Orchestrator) {
	t.Helper()
	mem := testutil.NewMemStore()
	mem.SeedUser("u-alice", 1000)
	cfg := config.GameConfig{
		TurnSeconds: 30, BlitzBankSeconds: 120, StartGraceSeconds: 3,
		OfferSeconds: 20, ReconnectGraceSeconds: 30, SweepMS: 250,
		DefaultBoardSize: 3, DefaultWinLength: 3, DefaultAnte: 50,
	}
	orch := arena.New(mem, ledger.New(mem), cfg)
	users := &fakeUsers{
		byToken: map[string]*store.User{
			"tok-alice": {ID: "u-alice", Name: "Alice", Rating: 1000, Level: 1},
		},
		mem: mem,
	}
	gw := NewGateway(orch, users)
	orch.SetBroadcaster(gw)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv, orch
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMessage(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", env.Type, err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestAuthWithToken(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	writeMessage(t, conn, Envelope{Type: "auth", Token: "tok-alice"})
	msg := readMessage(t, conn)
	if msg["type"] != "welcome" {
		t.Fatalf("expected welcome, got %v", msg["type"])
	}
	if msg["user_id"] != "u-alice" || msg["name"] != "Alice" {
		t.Fatalf("unexpected identity: %v / %v", msg["user_id"], msg["name"])
	}
	if msg["balance"] != float64(1000) {
		t.Fatalf("expected balance 1000, got %v", msg["balance"])
	}
}

func TestAuthRejectsBadToken(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	writeMessage(t, conn, Envelope{Type: "auth", Token: "nope"})
	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["code"] != "invalid_token" {
		t.Fatalf("expected invalid_token error, got %v", msg)
	}
}

func TestActionsRequireAuth(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	writeMessage(t, conn, Envelope{Type: "list_rooms", ReqID: "r1"})
	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["code"] != "not_authenticated" {
		t.Fatalf("expected not_authenticated error, got %v", msg)
	}
	if msg["req_id"] != "r1" {
		t.Fatalf("expected echoed req_id, got %v", msg["req_id"])
	}
}

func TestGuestCannotCreateRoom(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	writeMessage(t, conn, Envelope{Type: "auth", Guest: true, Name: "Watcher"})
	msg := readMessage(t, conn)
	if msg["type"] != "welcome" || msg["guest"] != true {
		t.Fatalf("expected guest welcome, got %v", msg)
	}

	writeMessage(t, conn, Envelope{Type: "create_room", ReqID: "r2", Ante: 50})
	msg = readMessage(t, conn)
	if msg["type"] != "error" || msg["code"] != "guests_spectate_only" {
		t.Fatalf("expected guests_spectate_only error, got %v", msg)
	}
}

func TestCreateRoomAckAndSnapshot(t *testing.T) {
	srv, orch := newTestGateway(t)
	conn := dial(t, srv)

	writeMessage(t, conn, Envelope{Type: "auth", Token: "tok-alice"})
	readMessage(t, conn)

	writeMessage(t, conn, Envelope{Type: "create_room", ReqID: "r3", Ante: 50})
	ack := readMessage(t, conn)
	if ack["type"] != "ack" || ack["action"] != "create_room" {
		t.Fatalf("expected create_room ack, got %v", ack)
	}
	roomID, _ := ack["room_id"].(string)
	if roomID == "" {
		t.Fatal("ack without room id")
	}

	state := readMessage(t, conn)
	if state["type"] != "state" || state["room_id"] != roomID {
		t.Fatalf("expected state for %s, got %v", roomID, state)
	}
	if state["status"] != "waiting" {
		t.Fatalf("expected waiting, got %v", state["status"])
	}

	if _, ok := orch.RoomByUser("u-alice"); !ok {
		t.Fatal("expected creator tracked in room")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decode([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestErrCodesAreWireSafe(t *testing.T) {
	for _, err := range []error{
		arena.ErrRoomNotFound,
		arena.ErrGuestsSpectateOnly,
		game.ErrNotYourTurn,
		store.ErrInsufficientFunds,
	} {
		code := errCode(err)
		if code == "" {
			t.Fatalf("empty code for %v", err)
		}
		if strings.Contains(code, " ") {
			t.Fatalf("code %q contains whitespace", code)
		}
	}
}

package arena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gridstakes/internal/config"
	"gridstakes/internal/game"
	"gridstakes/internal/ledger"
	"gridstakes/internal/store"
	"gridstakes/internal/testutil"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	states   []game.Snapshot
	direct   map[string][]any
	closed   []string
	closeWhy []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{direct: map[string][]any{}}
}

func (b *fakeBroadcaster) BroadcastState(roomID string, snap game.Snapshot) {
	b.mu.Lock()
	b.states = append(b.states, snap)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) SendTo(userID string, msg any) {
	b.mu.Lock()
	b.direct[userID] = append(b.direct[userID], msg)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) RoomClosed(roomID, reason string) {
	b.mu.Lock()
	b.closed = append(b.closed, roomID)
	b.closeWhy = append(b.closeWhy, reason)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) closedReason(roomID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, id := range b.closed {
		if id == roomID {
			return b.closeWhy[i], true
		}
	}
	return "", false
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		TurnSeconds:           30,
		BlitzBankSeconds:      3,
		StartGraceSeconds:     3,
		OfferSeconds:          20,
		ReconnectGraceSeconds: 30,
		SweepMS:               250,
		DefaultBoardSize:      3,
		DefaultWinLength:      3,
		DefaultAnte:           50,
	}
}

func newTestArena(t *testing.T) (*Orchestrator, *testutil.MemStore, *fakeBroadcaster, *fakeClock) {
	t.Helper()
	st := testutil.NewMemStore()
	st.SeedUser("alice", 1000)
	st.SeedUser("bob", 1000)
	clk := &fakeClock{t: t0}
	o := New(st, ledger.New(st), testGameConfig())
	o.now = clk.Now
	bc := newFakeBroadcaster()
	o.SetBroadcaster(bc)
	return o, st, bc, clk
}

// confirmedRoom seats alice (X) and bob (O) with both antes escrowed; the
// start is armed but has not fired.
func confirmedRoom(t *testing.T, o *Orchestrator, p RoomParams) string {
	t.Helper()
	ctx := context.Background()
	roomID, _, err := o.CreateRoom(ctx, "alice", "Alice", false, p)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := o.JoinRoom(ctx, "bob", "Bob", false, roomID); err != nil {
		t.Fatalf("join room: %v", err)
	}
	if _, err := o.ConfirmWager(ctx, "alice", roomID); err != nil {
		t.Fatalf("alice confirm: %v", err)
	}
	if _, err := o.ConfirmWager(ctx, "bob", roomID); err != nil {
		t.Fatalf("bob confirm: %v", err)
	}
	return roomID
}

// playingRoom runs the start grace out so the match is live.
func playingRoom(t *testing.T, o *Orchestrator, clk *fakeClock, p RoomParams) string {
	t.Helper()
	roomID := confirmedRoom(t, o, p)
	clk.Advance(4 * time.Second)
	o.sweep(context.Background())
	snap, err := o.Snapshot(roomID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != "playing" {
		t.Fatalf("expected playing after grace, got %s", snap.Status)
	}
	return roomID
}

func TestConfirmWagerIdempotent(t *testing.T) {
	o, st, _, _ := newTestArena(t)
	ctx := context.Background()
	roomID, _, err := o.CreateRoom(ctx, "alice", "Alice", false, RoomParams{Ante: 50})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := o.JoinRoom(ctx, "bob", "Bob", false, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := o.ConfirmWager(ctx, "alice", roomID); err != nil {
			t.Fatalf("confirm %d: %v", i+1, err)
		}
	}

	if got := st.Balance("alice"); got != 950 {
		t.Fatalf("expected balance 950 after one ante, got %d", got)
	}
	if entries := st.EntriesOfType("ante_debit"); len(entries) != 1 {
		t.Fatalf("expected 1 ante debit, got %d", len(entries))
	}
	snap, _ := o.Snapshot(roomID)
	if snap.Pot != 50 {
		t.Fatalf("expected pot 50, got %d", snap.Pot)
	}
}

func TestConfirmWagerInsufficientFunds(t *testing.T) {
	o, st, _, _ := newTestArena(t)
	st.SeedUser("bob", 10)
	ctx := context.Background()
	roomID, _, err := o.CreateRoom(ctx, "alice", "Alice", false, RoomParams{Ante: 50})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := o.JoinRoom(ctx, "bob", "Bob", false, roomID); err == nil {
		t.Fatal("expected join to fail on low balance")
	}

	st.SeedUser("bob", 60)
	if _, err := o.JoinRoom(ctx, "bob", "Bob", false, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	st.FailDebitFor = "bob"
	if _, err := o.ConfirmWager(ctx, "bob", roomID); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	st.FailDebitFor = ""

	// The failure is recoverable: the seat stays unconfirmed and a later
	// confirm succeeds.
	snap, _ := o.Snapshot(roomID)
	if snap.Status != "confirming_wager" {
		t.Fatalf("expected confirming_wager, got %s", snap.Status)
	}
	if _, err := o.ConfirmWager(ctx, "bob", roomID); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
}

func TestStartGraceDelaysPlay(t *testing.T) {
	o, _, _, clk := newTestArena(t)
	roomID := confirmedRoom(t, o, RoomParams{Ante: 50})

	snap, _ := o.Snapshot(roomID)
	if snap.Status != "confirming_wager" {
		t.Fatalf("expected confirming_wager during grace, got %s", snap.Status)
	}
	if snap.StartsInMS <= 0 {
		t.Fatalf("expected armed start countdown, got %d", snap.StartsInMS)
	}

	clk.Advance(1 * time.Second)
	o.sweep(context.Background())
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "confirming_wager" {
		t.Fatalf("grace fired early: %s", snap.Status)
	}

	clk.Advance(3 * time.Second)
	o.sweep(context.Background())
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "playing" {
		t.Fatalf("expected playing after grace, got %s", snap.Status)
	}
	if snap.Turn != "X" {
		t.Fatalf("expected X to open, got %q", snap.Turn)
	}
}

func TestDisconnectDuringGraceDisarmsStart(t *testing.T) {
	o, _, _, clk := newTestArena(t)
	roomID := confirmedRoom(t, o, RoomParams{Ante: 50})

	o.Disconnect("bob")
	clk.Advance(4 * time.Second)
	o.sweep(context.Background())

	snap, _ := o.Snapshot(roomID)
	if snap.Status != "confirming_wager" {
		t.Fatalf("expected start cancelled, got %s", snap.Status)
	}

	// Reconnecting re-arms the start with both confirmations standing.
	if _, err := o.JoinRoom(context.Background(), "bob", "Bob", false, roomID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	snap, _ = o.Snapshot(roomID)
	if snap.StartsInMS <= 0 {
		t.Fatalf("expected re-armed start, got %d", snap.StartsInMS)
	}
	clk.Advance(4 * time.Second)
	o.sweep(context.Background())
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "playing" {
		t.Fatalf("expected playing after rejoin grace, got %s", snap.Status)
	}
}

func TestWinSettlesPotAndRating(t *testing.T) {
	o, st, bc, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	// Column win for X: cells 0, 3, 6.
	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 1}, {"alice", 3}, {"bob", 4}, {"alice", 6},
	}
	var snap game.Snapshot
	var err error
	for _, m := range moves {
		clk.Advance(time.Second)
		snap, err = o.Move(ctx, m.user, roomID, m.cell)
		if err != nil {
			t.Fatalf("move %s@%d: %v", m.user, m.cell, err)
		}
	}

	if snap.Status != "finished" || snap.Winner != "X" {
		t.Fatalf("expected X win, got status=%s winner=%q", snap.Status, snap.Winner)
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected winner balance 1050, got %d", got)
	}
	if got := st.Balance("bob"); got != 950 {
		t.Fatalf("expected loser balance 950, got %d", got)
	}
	if len(st.Settled) != 1 {
		t.Fatalf("expected exactly one settlement, got %d", len(st.Settled))
	}
	p := st.Settled[0]
	if p.Pot != 100 || p.Remainder != 0 || p.MoveCount != 5 {
		t.Fatalf("unexpected settle params: pot=%d remainder=%d moves=%d", p.Pot, p.Remainder, p.MoveCount)
	}
	for _, seat := range p.Seats {
		switch seat.Outcome {
		case "win":
			if seat.RatingDelta != 16 || seat.NewRating != 1016 {
				t.Fatalf("winner rating delta %d new %d", seat.RatingDelta, seat.NewRating)
			}
		case "loss":
			if seat.RatingDelta != -16 || seat.NewRating != 984 {
				t.Fatalf("loser rating delta %d new %d", seat.RatingDelta, seat.NewRating)
			}
		default:
			t.Fatalf("unexpected outcome %q", seat.Outcome)
		}
	}

	bc.mu.Lock()
	aliceMsgs := len(bc.direct["alice"])
	bc.mu.Unlock()
	if aliceMsgs == 0 {
		t.Fatal("expected wallet/progression messages to the winner")
	}
}

func TestDrawSettlementSplitsPot(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	// Full board, no line for either side.
	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 1}, {"alice", 2}, {"bob", 4},
		{"alice", 3}, {"bob", 5}, {"alice", 7}, {"bob", 6}, {"alice", 8},
	}
	var snap game.Snapshot
	var err error
	for _, m := range moves {
		clk.Advance(time.Second)
		snap, err = o.Move(ctx, m.user, roomID, m.cell)
		if err != nil {
			t.Fatalf("move %s@%d: %v", m.user, m.cell, err)
		}
	}

	if snap.Status != "finished" || snap.Winner != "" {
		t.Fatalf("expected drawn finish, got status=%s winner=%q", snap.Status, snap.Winner)
	}
	// Even pot splits clean: each seat gets its ante back and ratings
	// between equals do not move.
	if st.Balance("alice") != 1000 || st.Balance("bob") != 1000 {
		t.Fatalf("expected 1000/1000, got %d/%d", st.Balance("alice"), st.Balance("bob"))
	}
	if len(st.Settled) != 1 {
		t.Fatalf("expected exactly one settlement, got %d", len(st.Settled))
	}
	p := st.Settled[0]
	if p.Pot != 100 || p.Remainder != 0 || p.MoveCount != 9 {
		t.Fatalf("unexpected settle params: pot=%d remainder=%d moves=%d", p.Pot, p.Remainder, p.MoveCount)
	}
	for _, seat := range p.Seats {
		if seat.Outcome != "draw" || seat.Payout != 50 {
			t.Fatalf("expected draw payout 50, got %q payout %d", seat.Outcome, seat.Payout)
		}
		if seat.RatingDelta != 0 || seat.NewRating != 1000 {
			t.Fatalf("draw between equals moved the rating: delta %d new %d", seat.RatingDelta, seat.NewRating)
		}
	}
}

func TestDrawSettlementOddPotRemainder(t *testing.T) {
	o, _, _, _ := newTestArena(t)
	facts := []seatFacts{
		{userID: "alice", name: "Alice", role: game.RoleX},
		{userID: "bob", name: "Bob", role: game.RoleO},
	}

	params, _, err := o.buildSettlement(context.Background(), "room-odd", facts, 101, "", true, game.WinStandard, false, 50, 9, nil)
	if err != nil {
		t.Fatalf("build settlement: %v", err)
	}
	if params.Remainder != 1 {
		t.Fatalf("expected remainder 1, got %d", params.Remainder)
	}
	for _, seat := range params.Seats {
		if seat.Payout != 50 {
			t.Fatalf("expected floor split of 50, got %d", seat.Payout)
		}
	}
	if params.Seats[0].Payout+params.Seats[1].Payout+params.Remainder != 101 {
		t.Fatal("pot not conserved across split and remainder")
	}
}

func TestSettlementRunsOnce(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 1}, {"alice", 3}, {"bob", 4}, {"alice", 6},
	}
	for _, m := range moves {
		if _, err := o.Move(ctx, m.user, roomID, m.cell); err != nil {
			t.Fatalf("move: %v", err)
		}
	}

	// Redundant claims and sweeps after the finish must not settle again.
	if _, err := o.ClaimTimeout(ctx, "bob", roomID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	o.sweep(ctx)
	o.sweep(ctx)
	if len(st.Settled) != 1 {
		t.Fatalf("expected one settlement, got %d", len(st.Settled))
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected 1050, got %d", got)
	}
}

func TestFailedSettlementRetriedByClaim(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})
	st.FailSettle = errors.New("db down")

	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 1}, {"alice", 3}, {"bob", 4}, {"alice", 6},
	}
	for _, m := range moves {
		if _, err := o.Move(ctx, m.user, roomID, m.cell); err != nil {
			t.Fatalf("move: %v", err)
		}
	}
	if len(st.Settled) != 0 {
		t.Fatal("settlement should have failed")
	}
	if got := st.Balance("alice"); got != 950 {
		t.Fatalf("no payout before retry, got %d", got)
	}

	if _, err := o.ClaimTimeout(ctx, "alice", roomID); err != nil {
		t.Fatalf("claim retry: %v", err)
	}
	if len(st.Settled) != 1 {
		t.Fatalf("expected settlement on retry, got %d", len(st.Settled))
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected 1050 after retry, got %d", got)
	}
}

func TestTimeoutClaimBlitz(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50, Blitz: true})

	if _, err := o.Move(ctx, "alice", roomID, 0); err != nil {
		t.Fatalf("move: %v", err)
	}

	// Premature claim is a silent no-op.
	snap, err := o.ClaimTimeout(ctx, "alice", roomID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if snap.Status != "playing" {
		t.Fatalf("premature claim finished the match: %s", snap.Status)
	}

	// Bank is 3s; 4s of wall clock empties it.
	clk.Advance(4 * time.Second)
	snap, err = o.ClaimTimeout(ctx, "alice", roomID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if snap.Status != "finished" || snap.Winner != "X" || snap.WinReason != "timeout" {
		t.Fatalf("expected X timeout win, got status=%s winner=%q reason=%q", snap.Status, snap.Winner, snap.WinReason)
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected 1050, got %d", got)
	}
}

func TestLeaveWhileConfirmingRefundsAntes(t *testing.T) {
	o, st, bc, _ := newTestArena(t)
	ctx := context.Background()
	roomID := confirmedRoom(t, o, RoomParams{Ante: 50})

	if err := o.Leave(ctx, "bob", roomID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := st.Balance("alice"); got != 1000 {
		t.Fatalf("expected alice refunded to 1000, got %d", got)
	}
	if got := st.Balance("bob"); got != 1000 {
		t.Fatalf("expected bob refunded to 1000, got %d", got)
	}
	if reason, ok := bc.closedReason(roomID); !ok || reason != "match_aborted" {
		t.Fatalf("expected match_aborted close, got %q ok=%v", reason, ok)
	}
	if _, err := o.Snapshot(roomID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected room gone, got %v", err)
	}
}

func TestLeaveDuringPlayForfeits(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	if err := o.Leave(ctx, "bob", roomID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, err := o.Snapshot(roomID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != "finished" || snap.Winner != "X" || snap.WinReason != "forfeit" {
		t.Fatalf("expected forfeit win for X, got status=%s winner=%q reason=%q", snap.Status, snap.Winner, snap.WinReason)
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected 1050, got %d", got)
	}
}

func TestDisconnectGraceForfeit(t *testing.T) {
	o, st, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	o.Disconnect("bob")
	snap, _ := o.Snapshot(roomID)
	if !snap.Paused {
		t.Fatal("expected pause on disconnect")
	}

	// Inside the grace window nothing resolves.
	clk.Advance(10 * time.Second)
	o.sweep(ctx)
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "playing" {
		t.Fatalf("grace fired early: %s", snap.Status)
	}

	clk.Advance(25 * time.Second)
	o.sweep(ctx)
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "finished" || snap.Winner != "X" || snap.WinReason != "disconnect" {
		t.Fatalf("expected disconnect forfeit, got status=%s winner=%q reason=%q", snap.Status, snap.Winner, snap.WinReason)
	}
	if got := st.Balance("alice"); got != 1050 {
		t.Fatalf("expected 1050, got %d", got)
	}
}

func TestReconnectInsideGraceResumes(t *testing.T) {
	o, _, _, clk := newTestArena(t)
	ctx := context.Background()
	roomID := playingRoom(t, o, clk, RoomParams{Ante: 50})

	if _, err := o.Move(ctx, "alice", roomID, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	clk.Advance(5 * time.Second)
	o.Disconnect("bob")
	clk.Advance(20 * time.Second)

	if _, err := o.JoinRoom(ctx, "bob", "Bob", false, roomID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	snap, _ := o.Snapshot(roomID)
	if snap.Paused {
		t.Fatal("expected resume on reconnect")
	}
	// Paused wall time is not charged: bob spent 5s before the pause out
	// of a 30s turn.
	if snap.TurnRemainingMS != 25000 {
		t.Fatalf("expected 25000ms remaining, got %d", snap.TurnRemainingMS)
	}

	clk.Advance(35 * time.Second)
	o.sweep(ctx)
	snap, _ = o.Snapshot(roomID)
	if snap.Status != "playing" {
		t.Fatalf("expired grace fired after reconnect: %s", snap.Status)
	}
}

func TestGuestsSpectateOnly(t *testing.T) {
	o, _, _, _ := newTestArena(t)
	ctx := context.Background()

	if _, _, err := o.CreateRoom(ctx, "ghost", "Ghost", true, RoomParams{}); !errors.Is(err, ErrGuestsSpectateOnly) {
		t.Fatalf("expected guest rejection, got %v", err)
	}

	roomID, _, err := o.CreateRoom(ctx, "alice", "Alice", false, RoomParams{Ante: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap, err := o.JoinRoom(ctx, "ghost", "Ghost", true, roomID)
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}
	for _, seat := range snap.Seats {
		if seat.UserID == "ghost" && seat.Role != "" {
			t.Fatalf("guest got a player seat: %q", seat.Role)
		}
	}
}

func TestListRooms(t *testing.T) {
	o, _, _, _ := newTestArena(t)
	ctx := context.Background()
	roomID, _, err := o.CreateRoom(ctx, "alice", "Alice", false, RoomParams{Name: "high stakes", Ante: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rooms := o.ListRooms()
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
	if rooms[0].RoomID != roomID || rooms[0].Status != "waiting" || rooms[0].Players != 1 {
		t.Fatalf("unexpected listing: %+v", rooms[0])
	}
}

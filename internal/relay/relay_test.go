package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/chessduel/internal/chess"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type relayHarness struct {
	srv   *Server
	store *MemoryStore
	url   string
}

func newHarness(t *testing.T) *relayHarness {
	t.Helper()
	store := NewMemoryStore()
	srv := NewServer(WithStore(store))
	ts := httptest.NewServer(NewRouter(srv))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &relayHarness{srv: srv, store: store, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func (h *relayHarness) peersIn(code string) int {
	list, _ := h.store.List(context.Background())
	for _, m := range list {
		if m.Code == code && m.State == StateLobby {
			return m.Peers
		}
	}
	return 0
}

// dialPair connects a host then a guest to the same code.
func (h *relayHarness) dialPair(t *testing.T, code string) (*Client, *Client) {
	t.Helper()
	ctx := context.Background()
	host, err := Dial(ctx, h.url, code)
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	eventually(t, "host registered", func() bool { return h.peersIn(code) == 1 })

	guest, err := Dial(ctx, h.url, code)
	if err != nil {
		t.Fatalf("dial guest: %v", err)
	}
	t.Cleanup(func() { _ = guest.Close() })
	eventually(t, "guest registered", func() bool { return h.peersIn(code) == 2 })
	return host, guest
}

func startPair(t *testing.T, h *relayHarness, code string) (*Client, *Client) {
	t.Helper()
	host, guest := h.dialPair(t, code)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := host.SendConfig(ctx, GameConfig{Color: "white", TimeMinutes: 5, IncrementSeconds: 2, Variant: "standard", Seed: 7}); err != nil {
		t.Fatalf("host config: %v", err)
	}
	if err := guest.SendConfig(ctx, GameConfig{Color: "white", TimeMinutes: 1, Variant: "standard"}); err != nil {
		t.Fatalf("guest config: %v", err)
	}
	hostCfg, err := host.WaitForStart(ctx)
	if err != nil {
		t.Fatalf("host WaitForStart: %v", err)
	}
	guestCfg, err := guest.WaitForStart(ctx)
	if err != nil {
		t.Fatalf("guest WaitForStart: %v", err)
	}
	if hostCfg.Color != "white" || guestCfg.Color != "black" {
		t.Fatalf("unexpected colors host=%s guest=%s", hostCfg.Color, guestCfg.Color)
	}
	if guestCfg.TimeMinutes != 5 || guestCfg.IncrementSeconds != 2 || guestCfg.Seed != 7 {
		t.Fatalf("guest should receive host settings, got %+v", guestCfg)
	}
	return host, guest
}

func TestRelayStartsAndForwardsMoves(t *testing.T) {
	h := newHarness(t)
	host, guest := startPair(t, h, "club")

	e4 := chess.NewMove(chess.Position{File: 4, Rank: 1}, chess.Position{File: 4, Rank: 3})
	if err := host.SendMove(e4); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	var got chess.Move
	eventually(t, "move at guest", func() bool {
		mv, ok := guest.TryReceiveMove()
		got = mv
		return ok
	})
	if !got.Equal(e4) {
		t.Fatalf("guest received %s, want e2e4", got.UCI())
	}

	promo := chess.Move{From: chess.Position{File: 0, Rank: 1}, To: chess.Position{File: 0, Rank: 0}, Promotion: true, PromoteTo: chess.Knight}
	if err := guest.SendMove(promo); err != nil {
		t.Fatalf("SendMove promo: %v", err)
	}
	eventually(t, "promotion at host", func() bool {
		mv, ok := host.TryReceiveMove()
		got = mv
		return ok
	})
	if !got.Promotion || got.PromoteTo != chess.Knight || got.UCI() != "a2a1n" {
		t.Fatalf("promotion lost in transit: %+v", got)
	}

	if err := host.SendGameOver(); err != nil {
		t.Fatalf("SendGameOver: %v", err)
	}
	eventually(t, "resignation at guest", guest.PeerResigned)
	if guest.PeerResigned() {
		t.Fatalf("resignation flag should be consumed")
	}

	eventually(t, "finished state", func() bool {
		list, _ := h.store.List(context.Background())
		return len(list) == 1 && list[0].State == StateFinished
	})
}

func TestRelayVariantMismatchDisconnectsBoth(t *testing.T) {
	h := newHarness(t)
	host, guest := h.dialPair(t, "mismatch")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_ = host.SendConfig(ctx, GameConfig{Color: "black", Variant: "standard"})
	_ = guest.SendConfig(ctx, GameConfig{Color: "white", Variant: "fischer"})

	for name, c := range map[string]*Client{"host": host, "guest": guest} {
		if _, err := c.WaitForStart(ctx); !errors.Is(err, ErrDisconnected) {
			t.Fatalf("%s: expected ErrDisconnected, got %v", name, err)
		}
		if !strings.Contains(c.DisconnectReason(), "variant mismatch") {
			t.Fatalf("%s: unexpected reason %q", name, c.DisconnectReason())
		}
	}
	eventually(t, "aborted state", func() bool {
		list, _ := h.store.List(context.Background())
		return len(list) == 1 && list[0].State == StateAborted
	})
	eventually(t, "match discarded", func() bool { return h.srv.ActiveMatches() == 0 })
}

func TestRelayInvalidConfigDisconnectsSender(t *testing.T) {
	h := newHarness(t)
	host, guest := h.dialPair(t, "badcfg")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := guest.write(ctx, Frame{Type: FrameGameConfig, Config: &GameConfig{Color: "purple", Variant: "standard"}}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := guest.WaitForStart(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if !strings.Contains(guest.DisconnectReason(), "invalid config") {
		t.Fatalf("unexpected reason %q", guest.DisconnectReason())
	}
	eventually(t, "guest removed from lobby", func() bool { return h.peersIn("badcfg") == 1 })
	if !host.IsConnected() {
		t.Fatalf("host should stay in the lobby")
	}
}

func TestJoinSkipsMatchClosedAfterLookup(t *testing.T) {
	srv := NewServer()
	stale := srv.lookup("race")
	stale.mu.Lock()
	stale.closed = true
	stale.mu.Unlock()

	m, err := srv.join("race", &peer{})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if m == stale {
		t.Fatalf("join reused a closed match")
	}
	if srv.ActiveMatches() != 1 || srv.lookup("race") != m {
		t.Fatalf("fresh lobby not registered")
	}
}

func TestRelayVariantAliasesAgree(t *testing.T) {
	h := newHarness(t)
	host, guest := h.dialPair(t, "alias")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_ = host.SendConfig(ctx, GameConfig{Color: "black", Variant: "960", Seed: 99})
	_ = guest.SendConfig(ctx, GameConfig{Color: "black", Variant: "fischer"})
	cfg, err := guest.WaitForStart(ctx)
	if err != nil {
		t.Fatalf("WaitForStart: %v", err)
	}
	if cfg.Color != "white" || cfg.Seed != 99 {
		t.Fatalf("unexpected guest config %+v", cfg)
	}
}

func TestRelayRefusesThirdPeer(t *testing.T) {
	h := newHarness(t)
	h.dialPair(t, "full")

	third, err := Dial(context.Background(), h.url, "full")
	if err != nil {
		t.Fatalf("dial third: %v", err)
	}
	defer third.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := third.WaitForStart(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected third peer to be disconnected, got %v", err)
	}
	if !strings.Contains(third.DisconnectReason(), ErrMatchFull.Error()) {
		t.Fatalf("unexpected reason %q", third.DisconnectReason())
	}
}

func TestRelayPeerLeavingNotifiesOpponent(t *testing.T) {
	h := newHarness(t)
	host, guest := startPair(t, h, "leave")

	if err := host.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	eventually(t, "guest disconnected", func() bool { return !guest.IsConnected() })
	if guest.DisconnectReason() != "opponent left" {
		t.Fatalf("unexpected reason %q", guest.DisconnectReason())
	}
	if err := guest.SendMove(chess.NewMove(chess.Position{File: 4, Rank: 6}, chess.Position{File: 4, Rank: 4})); err == nil {
		t.Fatalf("expected send to fail after disconnect")
	}
}

func TestRelayLobbyHostHandOver(t *testing.T) {
	h := newHarness(t)
	first, second := h.dialPair(t, "handover")
	_ = first.Close()
	eventually(t, "one peer left", func() bool { return h.peersIn("handover") == 1 })

	third, err := Dial(context.Background(), h.url, "handover")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer third.Close()
	eventually(t, "third registered", func() bool { return h.peersIn("handover") == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = second.SendConfig(ctx, GameConfig{Color: "black", Variant: "standard", TimeMinutes: 3})
	_ = third.SendConfig(ctx, GameConfig{Color: "black", Variant: "standard"})
	cfg, err := third.WaitForStart(ctx)
	if err != nil {
		t.Fatalf("WaitForStart: %v", err)
	}
	if cfg.Color != "white" || cfg.TimeMinutes != 3 {
		t.Fatalf("remaining peer should have become host, third got %+v", cfg)
	}
}

func TestMatchURL(t *testing.T) {
	got, err := MatchURL("ws://relay.local:8765/ws", " room 1 ")
	if err != nil {
		t.Fatalf("MatchURL: %v", err)
	}
	if got != "ws://relay.local:8765/ws?match=room+1" {
		t.Fatalf("unexpected url %q", got)
	}
	if _, err := MatchURL("http://relay.local/ws", "x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestMoveFrameConversion(t *testing.T) {
	f := MoveFrame{From: "e7", To: "e8", Promotion: true, PromoteTo: "R"}
	mv, err := f.ToMove()
	if err != nil {
		t.Fatalf("ToMove: %v", err)
	}
	if mv.UCI() != "e7e8r" {
		t.Fatalf("unexpected move %s", mv.UCI())
	}
	if back := NewMoveFrame(mv); back.PromoteTo != "r" || back.From != "e7" {
		t.Fatalf("unexpected frame %+v", back)
	}
	if _, err := (MoveFrame{From: "z9", To: "e8"}).ToMove(); err == nil {
		t.Fatalf("expected bad square error")
	}
	if _, err := (MoveFrame{From: "e7", To: "e8", PromoteTo: "x"}).ToMove(); err == nil {
		t.Fatalf("expected bad promotion error")
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	older := &MatchMeta{ID: "m1", Code: "a", State: StateFinished, CreatedAt: now.Add(-time.Minute)}
	newer := &MatchMeta{ID: "m2", Code: "b", State: StateLobby, Peers: 1, CreatedAt: now,
		Host: &GameConfig{Color: "white", Variant: "standard"}}
	for _, m := range []*MatchMeta{older, newer} {
		if err := store.Save(ctx, m); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := store.Save(ctx, &MatchMeta{}); err == nil {
		t.Fatalf("expected error for missing id")
	}

	got, err := store.Load(ctx, "m2")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if got.Host == nil || got.Host.Color != "white" || got.Peers != 1 {
		t.Fatalf("unexpected meta %+v", got)
	}
	if missing, err := store.Load(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %v %v", missing, err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "m2" {
		t.Fatalf("unexpected list order %+v", list)
	}

	mr.Del(store.keyMatch("m1"))
	list, _ = store.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expired match should be pruned, got %d", len(list))
	}
	if ok, _ := mr.SIsMember(store.keyIndex(), "m1"); ok {
		t.Fatalf("index still references pruned match")
	}
	if ttl := mr.TTL(store.keyMatch("m2")); ttl <= 0 {
		t.Fatalf("expected ttl on match key, got %v", ttl)
	}
}

func TestOpenRedisStoreBadURL(t *testing.T) {
	if _, err := OpenRedisStore(context.Background(), "http://nope"); err == nil {
		t.Fatalf("expected error for non-redis url")
	}
}

func TestStatusEndpoint(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), &MatchMeta{ID: "m1", Code: "club", State: StateActive, Peers: 2, CreatedAt: time.Now()})
	status := NewStatusServer(store, func() int { return 1 })

	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go func() { _ = status.Serve(ln) }()
	defer status.Shutdown(context.Background())

	client := NewStatusClient("http://relay.test",
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		WithStatusRetry(1),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" || health.ActiveMatches != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	matches, err := client.Matches(ctx)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if len(matches) != 1 || matches[0].Code != "club" || matches[0].State != StateActive {
		t.Fatalf("unexpected matches %+v", matches)
	}

	err = client.get(ctx, "/nope", &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestRouterTakesMatchCodeFromPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, err := Dial(ctx, h.url+"/lounge", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	eventually(t, "path code registered", func() bool { return h.peersIn("lounge") == 1 })

	resp, err := http.Post(strings.Replace(h.url, "ws://", "http://", 1), "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", resp.StatusCode)
	}
}

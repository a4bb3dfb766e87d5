package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessduel/internal/obslog"
)

const (
	DefaultMatchCode = "default"
	writeTimeout     = 5 * time.Second
	storeTimeout     = 2 * time.Second
)

var ErrMatchFull = errors.New("match already has two peers")

// Server pairs two websocket peers per match code, hands out the host's
// settings once both configs agree on the variant, then forwards move and
// game_over frames between them untouched.
type Server struct {
	store    Store
	log      *zap.Logger
	now      func() time.Time
	insecure bool

	mu      sync.Mutex
	matches map[string]*match
}

type ServerOption func(*Server)

func WithStore(st Store) ServerOption { return func(s *Server) { s.store = st } }

// WithInsecureOrigins accepts browser handshakes from any origin.
func WithInsecureOrigins() ServerOption { return func(s *Server) { s.insecure = true } }

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		store:   NewMemoryStore(),
		log:     obslog.Named("relay"),
		now:     time.Now,
		matches: make(map[string]*match),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Store() Store { return s.store }

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	config  *GameConfig
}

func (p *peer) send(f Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, p.conn, f)
}

func (p *peer) forward(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, data)
}

type match struct {
	mu        sync.Mutex
	id        string
	code      string
	peers     [2]*peer // [0] is the host
	state     MatchState
	reason    string
	started   bool
	closed    bool
	createdAt time.Time
	updatedAt time.Time
}

func (m *match) index(p *peer) int {
	for i, q := range m.peers {
		if q == p {
			return i
		}
	}
	return -1
}

func (m *match) other(p *peer) *peer {
	switch m.index(p) {
	case 0:
		return m.peers[1]
	case 1:
		return m.peers[0]
	}
	return nil
}

func (m *match) snapshotLocked() MatchMeta {
	meta := MatchMeta{
		ID:        m.id,
		Code:      m.code,
		State:     m.state,
		Reason:    m.reason,
		CreatedAt: m.createdAt,
		UpdatedAt: m.updatedAt,
	}
	for i, p := range m.peers {
		if p == nil {
			continue
		}
		meta.Peers++
		if p.config == nil {
			continue
		}
		cfg := *p.config
		if i == 0 {
			meta.Host = &cfg
		} else {
			meta.Guest = &cfg
		}
	}
	return meta
}

func (m *match) setState(state MatchState, reason string, now time.Time) {
	m.state = state
	if reason != "" {
		m.reason = reason
	}
	m.updatedAt = now
}

// ActiveMatches counts matches that still hold at least one peer.
func (s *Server) ActiveMatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode:    websocket.CompressionNoContextTakeover,
		InsecureSkipVerify: s.insecure,
	})
	if err != nil {
		s.log.Warn("relay_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("match"))
	if code == "" {
		code = DefaultMatchCode
	}

	p := &peer{conn: conn}
	m, err := s.join(code, p)
	if err != nil {
		s.log.Info("relay_peer_refused", zap.String("code", code), zap.Error(err))
		_ = p.send(Frame{Type: FrameDisconnect, Reason: err.Error()})
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	s.serve(r.Context(), m, p)
}

func (s *Server) join(code string, p *peer) (*match, error) {
	var m *match
	for {
		m = s.lookup(code)
		m.mu.Lock()
		if !m.closed {
			break
		}
		// torn down between lookup and lock; drop it and open a fresh lobby
		m.mu.Unlock()
		s.drop(m)
	}
	if m.started || (m.peers[0] != nil && m.peers[1] != nil) {
		m.mu.Unlock()
		return nil, ErrMatchFull
	}
	slot := 0
	if m.peers[0] != nil {
		slot = 1
	}
	m.peers[slot] = p
	m.updatedAt = s.now()
	meta := m.snapshotLocked()
	m.mu.Unlock()

	s.log.Info("relay_peer_joined", zap.String("code", code), zap.String("match", meta.ID), zap.Bool("host", slot == 0))
	s.persist(meta)
	return m, nil
}

// lookup returns the match registered under code, opening a lobby if none is.
func (s *Server) lookup(code string) *match {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.matches[code]
	if m == nil {
		now := s.now()
		m = &match{id: uuid.NewString(), code: code, state: StateLobby, createdAt: now, updatedAt: now}
		s.matches[code] = m
	}
	return m
}

func (s *Server) serve(ctx context.Context, m *match, p *peer) {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			s.leave(m, p, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("relay_bad_frame", zap.String("match", m.id), zap.Error(err))
			continue
		}
		switch f.Type {
		case FrameGameConfig:
			if s.configure(m, p, f.Config) {
				return
			}
		case FrameMove, FrameGameOver:
			s.forward(m, p, f.Type, data)
		default:
			s.log.Debug("relay_frame_ignored", zap.String("match", m.id), zap.String("type", string(f.Type)))
		}
	}
}

// configure records p's proposal. It returns true when the match was torn down.
func (s *Server) configure(m *match, p *peer, cfg *GameConfig) bool {
	if cfg == nil {
		return false
	}
	if err := cfg.Validate(); err != nil {
		reason := "invalid config: " + err.Error()
		s.log.Warn("relay_bad_config", zap.String("match", m.id), zap.Error(err))
		_ = p.send(Frame{Type: FrameDisconnect, Reason: reason})
		s.leave(m, p, err)
		return true
	}

	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return false
	}
	c := *cfg
	p.config = &c
	m.updatedAt = s.now()

	host, guest := m.peers[0], m.peers[1]
	if host == nil || guest == nil || host.config == nil || guest.config == nil {
		meta := m.snapshotLocked()
		m.mu.Unlock()
		s.persist(meta)
		return false
	}

	if !sameVariant(host.config.Variant, guest.config.Variant) {
		reason := "variant mismatch"
		s.log.Warn("relay_variant_mismatch", zap.String("match", m.id),
			zap.String("host", host.config.Variant), zap.String("guest", guest.config.Variant))
		m.setState(StateAborted, reason, s.now())
		m.closed = true
		meta := m.snapshotLocked()
		peers := m.peers
		for _, q := range peers {
			_ = q.send(Frame{Type: FrameDisconnect, Reason: reason})
		}
		m.mu.Unlock()
		s.persist(meta)
		s.drop(m)
		for _, q := range peers {
			_ = q.conn.Close(websocket.StatusPolicyViolation, reason)
		}
		return true
	}

	hostCfg := *host.config
	guestCfg := hostCfg
	guestCfg.Color = oppositeColor(hostCfg.Color)
	m.started = true
	m.setState(StateActive, "", s.now())

	// The match lock is held until both peers have their start frames, so a
	// fast host cannot get a move to the guest ahead of the guest's config.
	var sendErr error
	for _, out := range []struct {
		p   *peer
		cfg *GameConfig
	}{{host, &hostCfg}, {guest, &guestCfg}} {
		if err := out.p.send(Frame{Type: FrameGameConfig, Config: out.cfg}); err != nil {
			sendErr = err
		}
	}
	for _, q := range m.peers {
		if err := q.send(Frame{Type: FrameStartGame}); err != nil {
			sendErr = err
		}
	}
	meta := m.snapshotLocked()
	m.mu.Unlock()

	s.log.Info("relay_start_game", zap.String("match", m.id), zap.String("code", m.code),
		zap.String("variant", hostCfg.Variant), zap.String("host_color", hostCfg.Color),
		zap.Int("minutes", hostCfg.TimeMinutes), zap.Int("increment", hostCfg.IncrementSeconds))
	if sendErr != nil {
		s.log.Warn("relay_start_send_failed", zap.String("match", m.id), zap.Error(sendErr))
	}
	s.persist(meta)
	return false
}

func (s *Server) forward(m *match, from *peer, typ FrameType, data []byte) {
	m.mu.Lock()
	if !m.started || m.closed {
		m.mu.Unlock()
		return
	}
	to := m.other(from)
	var err error
	if to != nil {
		err = to.forward(data)
	}
	var meta *MatchMeta
	if typ == FrameGameOver && m.state == StateActive {
		m.setState(StateFinished, "resign", s.now())
		snap := m.snapshotLocked()
		meta = &snap
	}
	m.mu.Unlock()

	if err != nil {
		s.log.Warn("relay_forward_failed", zap.String("match", m.id), zap.String("type", string(typ)), zap.Error(err))
	}
	if meta != nil {
		s.log.Info("relay_game_over", zap.String("match", m.id))
		s.persist(*meta)
	}
}

func (s *Server) leave(m *match, p *peer, cause error) {
	m.mu.Lock()
	idx := m.index(p)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.peers[idx] = nil
	if m.closed {
		m.mu.Unlock()
		return
	}

	now := s.now()
	var closeOther *peer
	if m.started {
		other := m.peers[1-idx]
		if m.state == StateActive {
			m.setState(StateAborted, "peer left", now)
			if other != nil {
				_ = other.send(Frame{Type: FrameDisconnect, Reason: "opponent left"})
			}
		}
		closeOther = other
		m.closed = true
	} else {
		// the longest-waiting peer is always the host
		if idx == 0 {
			m.peers[0], m.peers[1] = m.peers[1], nil
		}
		m.updatedAt = now
		if m.peers[0] == nil {
			m.setState(StateAborted, "lobby empty", now)
			m.closed = true
		}
	}
	meta := m.snapshotLocked()
	closed := m.closed
	m.mu.Unlock()

	s.log.Info("relay_peer_left", zap.String("match", m.id), zap.String("state", string(meta.State)), zap.NamedError("cause", cause))
	_ = p.conn.Close(websocket.StatusNormalClosure, "")
	s.persist(meta)
	if closed {
		s.drop(m)
	}
	if closeOther != nil {
		_ = closeOther.conn.Close(websocket.StatusNormalClosure, "match over")
	}
}

func (s *Server) drop(m *match) {
	s.mu.Lock()
	if s.matches[m.code] == m {
		delete(s.matches, m.code)
	}
	s.mu.Unlock()
}

func (s *Server) persist(meta MatchMeta) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, &meta); err != nil {
		s.log.Warn("relay_store_failed", zap.String("match", meta.ID), zap.Error(err))
	}
}

// Close disconnects every peer.
func (s *Server) Close() {
	s.mu.Lock()
	matches := make([]*match, 0, len(s.matches))
	for code, m := range s.matches {
		matches = append(matches, m)
		delete(s.matches, code)
	}
	s.mu.Unlock()

	var peers []*peer
	for _, m := range matches {
		m.mu.Lock()
		m.closed = true
		for _, p := range m.peers {
			if p != nil {
				peers = append(peers, p)
			}
		}
		m.mu.Unlock()
	}
	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, "relay shutting down")
	}
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/obslog"
)

var (
	ErrDisconnected = errors.New("relay connection lost")
	ErrClientClosed = errors.New("relay client closed")
)

const (
	dialTimeout  = 10 * time.Second
	pingInterval = 30 * time.Second
	inboxSize    = 64
)

// Client is one peer's connection to the relay. Frames are read on a
// background goroutine; the game loop polls with TryReceiveMove.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	configCh  chan GameConfig
	startCh   chan struct{}
	startOnce sync.Once
	moves     chan chess.Move

	resigned  atomic.Bool
	connected atomic.Bool

	reasonMu sync.Mutex
	reason   string

	readDone chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// MatchURL appends the match code to a relay websocket URL.
func MatchURL(base, code string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported relay scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(code) != "" {
		q := u.Query()
		q.Set("match", strings.TrimSpace(code))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func Dial(ctx context.Context, relayURL, code string) (*Client, error) {
	target, err := MatchURL(relayURL, code)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", target, err)
	}

	c := &Client{
		conn:     conn,
		log:      obslog.Named("relay_client"),
		configCh: make(chan GameConfig, 1),
		startCh:  make(chan struct{}),
		moves:    make(chan chess.Move, inboxSize),
		readDone: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.connected.Store(true)

	c.wg.Add(2)
	go c.listen()
	go c.pingLoop()
	c.log.Info("relay_connected", zap.String("url", target))
	return c, nil
}

func (c *Client) listen() {
	defer c.wg.Done()
	defer close(c.readDone)
	defer c.connected.Store(false)

	for {
		var f Frame
		if err := wsjson.Read(c.rootCtx, c.conn, &f); err != nil {
			if !c.isStopping() {
				c.setReason(err.Error())
				c.log.Info("relay_read_ended", zap.Error(err))
			}
			return
		}
		switch f.Type {
		case FrameGameConfig:
			if f.Config == nil {
				continue
			}
			select {
			case c.configCh <- *f.Config:
			default:
				c.log.Warn("relay_extra_config_dropped")
			}
		case FrameStartGame:
			c.startOnce.Do(func() { close(c.startCh) })
		case FrameMove:
			if f.Move == nil {
				continue
			}
			mv, err := f.Move.ToMove()
			if err != nil {
				c.log.Warn("relay_bad_move_frame", zap.Any("move", f.Move), zap.Error(err))
				continue
			}
			select {
			case c.moves <- mv:
			default:
				c.log.Warn("relay_inbox_full", zap.String("move", mv.UCI()))
			}
		case FrameGameOver:
			c.resigned.Store(true)
		case FrameDisconnect:
			// keep reading so the relay's close handshake completes
			c.setReason(f.Reason)
			c.connected.Store(false)
			c.log.Info("relay_disconnect_frame", zap.String("reason", f.Reason))
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.readDone:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := c.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.setReason("ping failure")
				c.connected.Store(false)
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) SendConfig(ctx context.Context, cfg GameConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.write(ctx, Frame{Type: FrameGameConfig, Config: &cfg})
}

// WaitForStart blocks until the relay assigns a config and starts the game.
func (c *Client) WaitForStart(ctx context.Context) (GameConfig, error) {
	var cfg GameConfig
	select {
	case cfg = <-c.configCh:
	case <-c.readDone:
		return GameConfig{}, c.disconnectErr()
	case <-ctx.Done():
		return GameConfig{}, ctx.Err()
	}
	select {
	case <-c.startCh:
		return cfg, nil
	case <-c.readDone:
		return GameConfig{}, c.disconnectErr()
	case <-ctx.Done():
		return GameConfig{}, ctx.Err()
	}
}

func (c *Client) SendMove(m chess.Move) error {
	f := NewMoveFrame(m)
	return c.write(context.Background(), Frame{Type: FrameMove, Move: &f})
}

// TryReceiveMove never blocks.
func (c *Client) TryReceiveMove() (chess.Move, bool) {
	select {
	case mv := <-c.moves:
		return mv, true
	default:
		return chess.Move{}, false
	}
}

func (c *Client) SendGameOver() error {
	return c.write(context.Background(), Frame{Type: FrameGameOver})
}

// PeerResigned reports and clears a game_over received from the peer.
func (c *Client) PeerResigned() bool { return c.resigned.Swap(false) }

func (c *Client) IsConnected() bool { return c.connected.Load() }

// DisconnectReason is the relay's reason or the read error that ended the session.
func (c *Client) DisconnectReason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.CloseContext(ctx)
}

func (c *Client) CloseContext(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.connected.Store(false)
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		c.rootCancel()
		return ctx.Err()
	case <-done:
		c.rootCancel()
		return nil
	}
}

func (c *Client) write(ctx context.Context, f Frame) error {
	if c.isStopping() {
		return ErrClientClosed
	}
	if !c.IsConnected() {
		return c.disconnectErr()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, c.conn, f); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

func (c *Client) setReason(r string) {
	c.reasonMu.Lock()
	if c.reason == "" {
		c.reason = r
	}
	c.reasonMu.Unlock()
}

func (c *Client) disconnectErr() error {
	if r := c.DisconnectReason(); r != "" {
		return fmt.Errorf("%w: %s", ErrDisconnected, r)
	}
	return ErrDisconnected
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

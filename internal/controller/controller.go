package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/chess/engine"
	"github.com/park285/chessduel/internal/msgcat"
	"github.com/park285/chessduel/internal/obslog"
)

const (
	DefaultGameOverDelay = 3 * time.Second
	DefaultEngineThink   = time.Second
	engineRetryDelay     = 250 * time.Millisecond
)

// SeatKind is who plays a colour.
type SeatKind int

const (
	Human SeatKind = iota
	Engine
	Remote
)

func (k SeatKind) String() string {
	switch k {
	case Engine:
		return "engine"
	case Remote:
		return "remote"
	}
	return "human"
}

func ParseSeat(s string) (SeatKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "human":
		return Human, nil
	case "engine", "ai":
		return Engine, nil
	case "remote", "network":
		return Remote, nil
	}
	return Human, fmt.Errorf("unknown seat kind %q", s)
}

type State int

const (
	Idle State = iota
	PieceSelected
	OpponentTurn
	PromotionWait
	GameOver
)

func (s State) String() string {
	switch s {
	case PieceSelected:
		return "piece_selected"
	case OpponentTurn:
		return "opponent_turn"
	case PromotionWait:
		return "promotion_wait"
	case GameOver:
		return "game_over"
	}
	return "idle"
}

// MoveSource answers positions with a move in coordinate notation. Close
// must unblock a BestMove in progress.
type MoveSource interface {
	BestMove(ctx context.Context, fen string, think time.Duration) (string, error)
	Close() error
}

// Transport is the link to a network opponent.
type Transport interface {
	SendMove(m chess.Move) error
	TryReceiveMove() (chess.Move, bool)
	SendGameOver() error
	PeerResigned() bool
	IsConnected() bool
}

// Presenter receives user-facing notices.
type Presenter interface {
	ShowMessage(text string)
	ShowPromotion(color chess.Color, kinds []chess.Kind)
}

// Result is how the game ended. Decisive is false for draws.
type Result struct {
	Winner   chess.Color
	Decisive bool
	Reason   chess.EndReason
	Message  string
}

type Config struct {
	Board     *chess.Board
	White     SeatKind
	Black     SeatKind
	Engine    MoveSource
	Transport Transport
	Presenter Presenter
	Messages  *msgcat.Catalog

	EngineThink   time.Duration
	GameOverDelay time.Duration
	Now           func() time.Time
	OnGameEnd     func(Result)
}

var (
	ErrNoBoard     = errors.New("controller needs a board")
	ErrNoEngine    = errors.New("engine seat configured without an engine")
	ErrNoTransport = errors.New("remote seat configured without a transport")
	ErrBothRemote  = errors.New("at least one seat must be local")
)

type engineTask struct {
	done atomic.Bool
	move string
	err  error
	ply  int
}

// Controller drives one game. All methods except Close must be called from
// the game loop goroutine; the only concurrent work is a single engine
// search per turn.
type Controller struct {
	board     *chess.Board
	seats     [2]SeatKind
	engine    MoveSource
	transport Transport
	presenter Presenter
	messages  *msgcat.Catalog
	think     time.Duration
	delay     time.Duration
	now       func() time.Time
	onGameEnd func(Result)
	log       *zap.Logger

	state    State
	selected chess.Position
	cache    []chess.Move
	pending  chess.Move

	task       *engineTask
	retryAfter time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
	closed     atomic.Bool

	over      bool
	result    Result
	overAt    time.Time
	signalled bool
}

func New(cfg Config) (*Controller, error) {
	if cfg.Board == nil {
		return nil, ErrNoBoard
	}
	seats := [2]SeatKind{chess.White: cfg.White, chess.Black: cfg.Black}
	if seats[chess.White] == Remote && seats[chess.Black] == Remote {
		return nil, ErrBothRemote
	}
	if (seats[0] == Engine || seats[1] == Engine) && cfg.Engine == nil {
		return nil, ErrNoEngine
	}
	if (seats[0] == Remote || seats[1] == Remote) && cfg.Transport == nil {
		return nil, ErrNoTransport
	}

	c := &Controller{
		board:     cfg.Board,
		seats:     seats,
		engine:    cfg.Engine,
		transport: cfg.Transport,
		presenter: cfg.Presenter,
		messages:  cfg.Messages,
		think:     cfg.EngineThink,
		delay:     cfg.GameOverDelay,
		now:       cfg.Now,
		onGameEnd: cfg.OnGameEnd,
		log:       obslog.Named("controller"),
		selected:  chess.InvalidPosition,
	}
	if c.think <= 0 {
		c.think = DefaultEngineThink
	}
	if c.delay <= 0 {
		c.delay = DefaultGameOverDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.messages == nil {
		c.messages = msgcat.MustDefault()
	}
	if !networked(seats) {
		c.transport = nil
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.enterTurn()
	return c, nil
}

func networked(seats [2]SeatKind) bool { return seats[0] == Remote || seats[1] == Remote }

// localColor is the colour played on this machine in a network game.
func (c *Controller) localColor() chess.Color {
	if c.seats[chess.White] == Remote {
		return chess.Black
	}
	return chess.White
}

func (c *Controller) Board() *chess.Board { return c.board }

func (c *Controller) State() State { return c.state }

func (c *Controller) Seat(color chess.Color) SeatKind { return c.seats[color] }

// Result is valid once State is GameOver.
func (c *Controller) Result() (Result, bool) { return c.result, c.over }

func (c *Controller) Selected() chess.Position { return c.selected }

// Highlights are the target squares of the selected piece. For castling
// moves the rook square is marked too.
func (c *Controller) Highlights() []chess.Position {
	out := make([]chess.Position, 0, len(c.cache))
	for _, m := range c.cache {
		out = append(out, m.To)
		if r, ok := c.board.CastlingRook(m); ok {
			out = append(out, r)
		}
	}
	return out
}

// PromotionKinds lists the choices while a promotion is pending.
func (c *Controller) PromotionKinds() []chess.Kind {
	if c.state != PromotionWait {
		return nil
	}
	return chess.PromotionKinds()
}

// Snapshot is a read-only view for rendering.
type Snapshot struct {
	Grid       chess.Grid
	Turn       chess.Color
	Status     chess.Status
	State      State
	Remaining  [2]time.Duration
	History    []chess.Move
	Selected   chess.Position
	Highlights []chess.Position
	Promotion  []chess.Kind
}

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Grid:       c.board.Grid(),
		Turn:       c.board.Turn(),
		Status:     c.board.Status(),
		State:      c.state,
		Remaining:  [2]time.Duration{c.board.Remaining(chess.White), c.board.Remaining(chess.Black)},
		History:    c.board.History(),
		Selected:   c.selected,
		Highlights: c.Highlights(),
		Promotion:  c.PromotionKinds(),
	}
}

func (c *Controller) busy() bool {
	return c.over || c.task != nil || c.state == PromotionWait || c.state == OpponentTurn
}

// Click handles a square press from the local human.
func (c *Controller) Click(pos chess.Position) {
	if c.busy() || !pos.Valid() || c.seats[c.board.Turn()] != Human {
		return
	}
	turn := c.board.Turn()
	own := func(p chess.Position) bool {
		pc := c.board.At(p)
		return !pc.Empty() && pc.Color == turn
	}

	switch c.state {
	case Idle:
		if own(pos) {
			c.selectSquare(pos)
		}
	case PieceSelected:
		if mv, ok := c.castlingByRook(pos); ok {
			c.apply(mv)
			return
		}
		if mv, ok := c.cached(pos); ok {
			if mv.Promotion {
				c.pending = mv
				c.state = PromotionWait
				if c.presenter != nil {
					c.presenter.ShowPromotion(turn, chess.PromotionKinds())
				}
				return
			}
			c.apply(mv)
			return
		}
		if own(pos) {
			c.selectSquare(pos)
			return
		}
		c.clearSelection()
		c.state = Idle
	}
}

func (c *Controller) selectSquare(pos chess.Position) {
	c.selected = pos
	c.cache = c.board.SelectableMoves(pos)
	c.state = PieceSelected
}

func (c *Controller) clearSelection() {
	c.selected = chess.InvalidPosition
	c.cache = nil
	c.pending = chess.Move{}
}

// cached picks the selectable move ending on to. A plain king step wins
// over a castling placeholder with the same endpoints; castling is then
// reached by clicking the rook.
func (c *Controller) cached(to chess.Position) (chess.Move, bool) {
	return pick(c.cache, chess.Move{From: c.selected, To: to}, false)
}

// castlingByRook returns the castling move of the selected king when rook
// is the rook it castles with.
func (c *Controller) castlingByRook(rook chess.Position) (chess.Move, bool) {
	for _, m := range c.cache {
		if r, ok := c.board.CastlingRook(m); ok && r == rook {
			return m, true
		}
	}
	return chess.Move{}, false
}

// pick returns the candidate with the endpoints of want, preferring the one
// whose castling flag equals castling.
func pick(cands []chess.Move, want chess.Move, castling bool) (chess.Move, bool) {
	var fallback chess.Move
	found := false
	for _, m := range cands {
		if !m.Equal(want) {
			continue
		}
		if m.Castling == castling {
			return m, true
		}
		if !found {
			fallback, found = m, true
		}
	}
	return fallback, found
}

// ChoosePromotion completes a pending promotion. Other kinds are ignored.
func (c *Controller) ChoosePromotion(kind chess.Kind) {
	if c.over || c.state != PromotionWait || !promotionKind(kind) {
		return
	}
	mv := c.pending
	mv.PromoteTo = kind
	c.apply(mv)
}

func (c *Controller) CancelPromotion() {
	if c.over || c.state != PromotionWait {
		return
	}
	c.clearSelection()
	c.state = Idle
}

func promotionKind(k chess.Kind) bool {
	for _, p := range chess.PromotionKinds() {
		if p == k {
			return true
		}
	}
	return false
}

// Resign ends the game for the local side: the side to move in a local game,
// the local colour in a network game.
func (c *Controller) Resign() {
	if c.over {
		return
	}
	resigner := c.board.Turn()
	if c.transport != nil {
		resigner = c.localColor()
		if err := c.transport.SendGameOver(); err != nil {
			c.log.Warn("controller_send_game_over_failed", zap.Error(err))
		}
	}
	c.finish(Result{Winner: resigner.Opponent(), Decisive: true, Reason: chess.ReasonResign})
}

// Update advances the game by one loop tick.
func (c *Controller) Update() {
	if c.closed.Load() {
		return
	}
	if c.over {
		if !c.signalled && c.now().Sub(c.overAt) >= c.delay {
			c.signalled = true
			if c.onGameEnd != nil {
				c.onGameEnd(c.result)
			}
		}
		return
	}

	c.board.UpdateClock()
	if c.board.IsTimeUp() {
		winner, ok := c.board.Winner()
		c.finish(Result{Winner: winner, Decisive: ok, Reason: chess.ReasonTimeout})
		return
	}

	if c.transport != nil && c.transport.PeerResigned() {
		c.finish(Result{Winner: c.localColor(), Decisive: true, Reason: chess.ReasonResign})
		return
	}

	switch c.seats[c.board.Turn()] {
	case Remote:
		c.pollRemote()
	case Engine:
		c.pollEngine()
	}

	if !c.over && c.transport != nil && !c.transport.IsConnected() {
		c.log.Info("controller_peer_disconnected")
		c.finish(Result{Winner: c.localColor(), Decisive: true, Reason: chess.ReasonDisconnect})
	}
}

func (c *Controller) pollRemote() {
	in, ok := c.transport.TryReceiveMove()
	if !ok {
		return
	}
	mv, legal := c.matchRemote(in)
	if !legal {
		c.log.Warn("controller_illegal_remote_move", zap.String("move", in.UCI()), zap.String("fen", c.board.FEN()))
		if c.presenter != nil {
			c.presenter.ShowMessage(c.messages.RenderOr("game.error.illegal_remote",
				map[string]any{"Move": in.UCI()}, "Ignored illegal move "+in.UCI()))
		}
		return
	}
	c.apply(mv)
}

// matchRemote finds the selectable move with the same endpoints. A move
// flagged as castling must resolve to castling, and promotions must name
// their kind.
func (c *Controller) matchRemote(in chess.Move) (chess.Move, bool) {
	if !in.Valid() {
		return chess.Move{}, false
	}
	cand, ok := pick(c.board.SelectableMoves(in.From), in, in.Castling)
	if !ok || (in.Castling && !cand.Castling) || cand.Promotion != in.Promotion {
		return chess.Move{}, false
	}
	if cand.Promotion {
		if !promotionKind(in.PromoteTo) {
			return chess.Move{}, false
		}
		cand.PromoteTo = in.PromoteTo
	}
	return cand, true
}

func (c *Controller) pollEngine() {
	if c.task == nil {
		if c.now().Before(c.retryAfter) {
			return
		}
		c.launchEngine()
		return
	}
	if !c.task.done.Load() {
		return
	}
	t := c.task
	c.wg.Wait()
	c.task = nil

	if t.err != nil {
		c.log.Warn("controller_engine_failed", zap.Error(t.err))
		c.retryAfter = c.now().Add(engineRetryDelay)
		return
	}
	if t.ply != len(c.board.History()) {
		return
	}
	mv, ok := c.translate(t.move)
	if !ok {
		c.log.Warn("controller_engine_move_rejected", zap.String("move", t.move), zap.String("fen", c.board.FEN()))
		c.retryAfter = c.now().Add(engineRetryDelay)
		return
	}
	c.apply(mv)
}

func (c *Controller) launchEngine() {
	t := &engineTask{ply: len(c.board.History())}
	fen := c.board.FEN()
	ctx := c.ctx
	c.task = t
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		mv, err := c.engine.BestMove(ctx, fen, c.think)
		t.move, t.err = mv, err
		t.done.Store(true)
	}()
}

// translate maps an engine reply onto a selectable move of its origin
// square. A king-takes-own-rook reply (Chess960 castling) becomes the
// castling placeholder on the g or c file.
func (c *Controller) translate(s string) (chess.Move, bool) {
	parsed, err := engine.ParseMove(s)
	if err != nil {
		return chess.Move{}, false
	}
	from, to := c.board.At(parsed.From), c.board.At(parsed.To)
	takesRook := from.Kind == chess.King && to.Kind == chess.Rook && to.Color == from.Color
	if takesRook {
		file := 2
		if parsed.To.File > parsed.From.File {
			file = 6
		}
		parsed.To = chess.Position{File: file, Rank: parsed.From.Rank}
	}

	cand, ok := pick(c.board.SelectableMoves(parsed.From), parsed, takesRook)
	if !ok || (takesRook && !cand.Castling) {
		return chess.Move{}, false
	}
	if cand.Promotion {
		cand.PromoteTo = chess.Queen
		if promotionKind(parsed.PromoteTo) {
			cand.PromoteTo = parsed.PromoteTo
		}
	}
	return cand, true
}

func (c *Controller) apply(mv chess.Move) bool {
	mover := c.board.Turn()
	if !c.board.MakeMove(mv) {
		c.log.Debug("controller_move_rejected", zap.String("move", mv.UCI()))
		return false
	}
	c.clearSelection()

	if c.transport != nil && c.seats[mover] != Remote {
		if err := c.transport.SendMove(mv); err != nil {
			c.log.Warn("controller_send_move_failed", zap.String("move", mv.UCI()), zap.Error(err))
		}
	}

	if c.board.Status() == chess.EndGame {
		winner, ok := c.board.Winner()
		c.finish(Result{Winner: winner, Decisive: ok, Reason: c.board.EndReason()})
		return true
	}
	c.enterTurn()
	return true
}

func (c *Controller) enterTurn() {
	if c.seats[c.board.Turn()] == Human {
		c.state = Idle
		return
	}
	c.state = OpponentTurn
}

func (c *Controller) finish(res Result) {
	if c.over {
		return
	}
	c.over = true
	c.state = GameOver
	c.clearSelection()
	c.board.StopClock()
	c.cancel()

	res.Message = c.endMessage(res)
	c.result = res
	c.overAt = c.now()
	c.log.Info("controller_game_over",
		zap.String("reason", string(res.Reason)),
		zap.Bool("decisive", res.Decisive),
		zap.Stringer("winner", res.Winner),
		zap.Int("plies", len(c.board.History())))
	if c.presenter != nil {
		c.presenter.ShowMessage(res.Message)
	}
}

func (c *Controller) endMessage(res Result) string {
	data := map[string]any{
		"Winner": title(res.Winner.String()),
		"Loser":  title(res.Winner.Opponent().String()),
	}
	fallback := "Game over: " + string(res.Reason)
	return c.messages.RenderOr("game.end."+string(res.Reason), data, fallback)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Close stops engine work and waits for the background search to return.
// A result produced after Close is never applied.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		if c.engine != nil {
			err = c.engine.Close()
		}
		c.wg.Wait()
		c.task = nil
	})
	return err
}

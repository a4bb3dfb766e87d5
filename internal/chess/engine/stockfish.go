package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/chess/uci"
	"github.com/park285/chessduel/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrNoMove = errors.New("engine produced no move")
	ErrClosed = errors.New("engine closed")
)

// Stockfish asks an external UCI engine for moves through a session pool.
type Stockfish struct {
	pool     *uci.Pool
	preset   Preset
	chess960 bool
	book     *Book

	randMu sync.Mutex
	rand   *rand.Rand

	closeOnce sync.Once
	closeErr  error
}

type StockfishOption func(*Stockfish)

func WithChess960(on bool) StockfishOption { return func(s *Stockfish) { s.chess960 = on } }

func WithBook(b *Book) StockfishOption { return func(s *Stockfish) { s.book = b } }

func WithSeed(seed int64) StockfishOption {
	return func(s *Stockfish) { s.rand = rand.New(rand.NewSource(seed)) }
}

// NewStockfish starts one session up front so a broken binary fails here
// instead of in the middle of a game.
func NewStockfish(ctx context.Context, binaryPath string, preset Preset, opts ...StockfishOption) (*Stockfish, error) {
	if err := ValidatePreset(preset); err != nil {
		return nil, err
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: binaryPath, PerPresetCapacity: 1})
	if err != nil {
		return nil, err
	}
	s := &Stockfish{
		pool:   pool,
		preset: preset,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}

	session, err := pool.Acquire(ctx, options(preset, s.chess960))
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("start engine %s: %w", binaryPath, err)
	}
	pool.Release(session, nil)
	obslog.L().Info("engine_ready", zap.String("binary", binaryPath), zap.String("preset", preset.Name), zap.Bool("chess960", s.chess960))
	return s, nil
}

// BestMove returns the chosen move for fen in coordinate notation.
func (s *Stockfish) BestMove(ctx context.Context, fen string, think time.Duration) (string, error) {
	if s.book != nil && !s.chess960 {
		if mv, ok := s.book.Lookup(fen); ok {
			obslog.L().Debug("engine_book_move", zap.String("fen", fen), zap.String("move", mv))
			return mv, nil
		}
	}

	session, err := s.pool.Acquire(ctx, options(s.preset, s.chess960))
	if err != nil {
		if errors.Is(err, uci.ErrPoolClosed) {
			return "", ErrClosed
		}
		return "", err
	}
	var releaseErr error
	defer func() { s.pool.Release(session, releaseErr) }()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return "", err
	}

	start := time.Now()
	resp, err := session.Search(ctx, uci.SearchRequest{FEN: fen, Limits: limits(s.preset, think)})
	if err != nil {
		releaseErr = err
		return "", err
	}

	move := resp.BestMove
	if len(resp.Candidates) > 1 {
		s.randMu.Lock()
		chosen, selErr := SelectCandidate(s.preset, resp.Candidates, s.rand)
		s.randMu.Unlock()
		if selErr == nil && chosen.Move != "" {
			move = chosen.Move
		}
	}
	move = strings.TrimSpace(move)
	if _, err := ParseMove(move); err != nil {
		return "", err
	}
	obslog.L().Debug("engine_move", zap.String("fen", fen), zap.String("move", move), zap.Duration("took", time.Since(start)))
	return move, nil
}

// ParseMove accepts <file><rank><file><rank>[qrbn]. Anything else counts
// as no move.
func ParseMove(s string) (chess.Move, error) {
	m, err := chess.ParseUCI(s)
	if err != nil {
		return chess.Move{}, fmt.Errorf("%w: %v", ErrNoMove, err)
	}
	return m, nil
}

// Close kills every engine process, unblocking any search in progress.
func (s *Stockfish) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pool.Close()
	})
	return s.closeErr
}

package engine

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/dylhunn/dragontoothmg"
)

const (
	mateScore    = 1_000_000
	defaultDepth = 3
)

var pieceValues = struct{ pawn, knight, bishop, rook, queen int }{100, 320, 330, 500, 900}

// Builtin is a small in-process searcher used when no external engine is
// configured. It plays material-greedy alpha-beta to a fixed depth.
type Builtin struct {
	depth int
	// standard castling only; positions from other variants drop their rights
	stripCastling bool
}

func NewBuiltin(depth int, chess960 bool) *Builtin {
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Builtin{depth: depth, stripCastling: chess960}
}

func (e *Builtin) BestMove(ctx context.Context, fen string, think time.Duration) (move string, err error) {
	if think > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, think)
		defer cancel()
	}
	if e.stripCastling {
		fen = withoutCastling(fen)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builtin engine: bad position %q: %v", fen, r)
		}
	}()

	b := dragontoothmg.ParseFen(fen)
	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		return "", ErrNoMove
	}

	best := moves[0]
	alpha, beta := -mateScore-1, mateScore+1
	s := &search{ctx: ctx}
	for _, m := range moves {
		unapply := b.Apply(m)
		score := -s.negamax(&b, e.depth-1, -beta, -alpha)
		unapply()
		if s.stopped {
			break
		}
		if score > alpha {
			alpha = score
			best = m
		}
	}
	if err := ctx.Err(); err != nil && think <= 0 {
		return "", err
	}
	return best.String(), nil
}

func (e *Builtin) Close() error { return nil }

type search struct {
	ctx     context.Context
	nodes   int
	stopped bool
}

func (s *search) negamax(b *dragontoothmg.Board, depth, alpha, beta int) int {
	s.nodes++
	if s.nodes&1023 == 0 && s.ctx.Err() != nil {
		s.stopped = true
	}
	if s.stopped {
		return 0
	}

	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		if b.OurKingInCheck() {
			return -mateScore
		}
		return 0
	}
	if depth <= 0 {
		return evaluate(b)
	}
	for _, m := range moves {
		unapply := b.Apply(m)
		score := -s.negamax(b, depth-1, -beta, -alpha)
		unapply()
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

// evaluate scores material from the side to move.
func evaluate(b *dragontoothmg.Board) int {
	score := material(&b.White) - material(&b.Black)
	if !b.Wtomove {
		return -score
	}
	return score
}

func material(bb *dragontoothmg.Bitboards) int {
	return bits.OnesCount64(bb.Pawns)*pieceValues.pawn +
		bits.OnesCount64(bb.Knights)*pieceValues.knight +
		bits.OnesCount64(bb.Bishops)*pieceValues.bishop +
		bits.OnesCount64(bb.Rooks)*pieceValues.rook +
		bits.OnesCount64(bb.Queens)*pieceValues.queen
}

func withoutCastling(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 3 {
		return fen
	}
	fields[2] = "-"
	return strings.Join(fields, " ")
}

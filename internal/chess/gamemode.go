package chess

import (
	"fmt"
	"math/rand"
	"strings"
)

type Variant string

const (
	VariantStandard Variant = "standard"
	VariantFischer  Variant = "fischer"
)

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "classic":
		return VariantStandard, nil
	case "fischer", "chess960", "960", "random":
		return VariantFischer, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// GameMode holds the fixed configuration of a variant. Both variants share
// one legality algorithm and differ only in the starting back rank.
type GameMode struct {
	variant Variant
	seed    int64
}

func Standard() GameMode { return GameMode{variant: VariantStandard} }

func Fischer(seed int64) GameMode { return GameMode{variant: VariantFischer, seed: seed} }

func NewGameMode(v Variant, seed int64) (GameMode, error) {
	switch v {
	case VariantStandard:
		return Standard(), nil
	case VariantFischer:
		return Fischer(seed), nil
	}
	return GameMode{}, fmt.Errorf("unknown variant %q", v)
}

func (m GameMode) Variant() Variant {
	if m.variant == "" {
		return VariantStandard
	}
	return m.variant
}

func (m GameMode) Seed() int64 { return m.seed }

// Setup places both armies. The fischer back rank is mirrored on both sides.
func (m GameMode) Setup(g *Grid) {
	*g = Grid{}
	back := [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	if m.Variant() == VariantFischer {
		back = fischerBackRank(m.seed)
	}
	for f := 0; f < 8; f++ {
		g[0][f] = Piece{Kind: back[f], Color: White}
		g[1][f] = Piece{Kind: Pawn, Color: White}
		g[6][f] = Piece{Kind: Pawn, Color: Black}
		g[7][f] = Piece{Kind: back[f], Color: Black}
	}
}

func fischerBackRank(seed int64) [8]Kind {
	r := rand.New(rand.NewSource(seed))
	var rank [8]Kind
	rank[2*r.Intn(4)] = Bishop
	rank[2*r.Intn(4)+1] = Bishop

	place := func(k Kind) {
		free := freeFiles(rank)
		rank[free[r.Intn(len(free))]] = k
	}
	place(Queen)
	place(Knight)
	place(Knight)

	free := freeFiles(rank)
	rank[free[0]] = Rook
	rank[free[1]] = King
	rank[free[2]] = Rook
	return rank
}

func freeFiles(rank [8]Kind) []int {
	out := make([]int, 0, 8)
	for f, k := range rank {
		if k == None {
			out = append(out, f)
		}
	}
	return out
}

// IsValidMove reports whether color may play mv. mv must carry the flags
// produced by PseudoMoves.
func (m GameMode) IsValidMove(g *Grid, color Color, mv Move, last *Move) bool {
	if !mv.Valid() {
		return false
	}
	pc := g.At(mv.From)
	if pc.Empty() || pc.Color != color {
		return false
	}
	if mv.Castling && !m.castlingAllowed(g, color, mv, last) {
		return false
	}
	sim := *g
	m.Move(&sim, mv, color)
	return !m.IsInCheck(&sim, color, &mv)
}

func (m GameMode) castlingAllowed(g *Grid, color Color, mv Move, last *Move) bool {
	king := g.At(mv.From)
	if king.Kind != King || king.Moved {
		return false
	}
	home := color.homeRank()
	if mv.From.Rank != home || mv.To.Rank != home {
		return false
	}
	if m.IsInCheck(g, color, last) {
		return false
	}
	kingside := mv.To.File == kingsideFile
	rookFrom, ok := castlingRook(g, color, mv.From, kingside)
	if !ok {
		return false
	}
	rookTo := castlingRookTarget(home, kingside)

	lo, hi := minMax(mv.From.File, mv.To.File, rookFrom.File, rookTo.File)
	for f := lo; f <= hi; f++ {
		sq := Position{File: f, Rank: home}
		if sq == mv.From || sq == rookFrom {
			continue
		}
		if !g.At(sq).Empty() {
			return false
		}
	}

	step := 1
	if mv.To.File < mv.From.File {
		step = -1
	}
	for f := mv.From.File; f != mv.To.File; {
		f += step
		if Attacked(g, Position{File: f, Rank: home}, color.Opponent()) {
			return false
		}
	}
	return true
}

// castlingRook finds the unmoved rook of color beside the king on the
// requested side. Pieces in between are checked by the caller.
func castlingRook(g *Grid, color Color, king Position, kingside bool) (Position, bool) {
	step := -1
	if kingside {
		step = 1
	}
	for sq := king.add(step, 0); sq.Valid(); sq = sq.add(step, 0) {
		pc := g.At(sq)
		if pc.Kind == Rook && pc.Color == color && !pc.Moved {
			return sq, true
		}
	}
	return InvalidPosition, false
}

func castlingRookTarget(home int, kingside bool) Position {
	if kingside {
		return Position{File: kingsideFile - 1, Rank: home}
	}
	return Position{File: queensideFile + 1, Rank: home}
}

func (m GameMode) IsInCheck(g *Grid, color Color, last *Move) bool {
	king := g.FindKing(color)
	if !king.Valid() {
		return false
	}
	return Attacked(g, king, color.Opponent())
}

// HasLegalMove reports whether color has at least one legal move.
func (m GameMode) HasLegalMove(g *Grid, color Color, last *Move) bool {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if g[r][f].Empty() || g[r][f].Color != color {
				continue
			}
			for _, mv := range PseudoMoves(g, Position{File: f, Rank: r}, last) {
				if m.IsValidMove(g, color, mv, last) {
					return true
				}
			}
		}
	}
	return false
}

func (m GameMode) IsCheckmate(g *Grid, color Color, last *Move) bool {
	return m.IsInCheck(g, color, last) && !m.HasLegalMove(g, color, last)
}

func (m GameMode) IsStalemate(g *Grid, color Color, last *Move) bool {
	return !m.IsInCheck(g, color, last) && !m.HasLegalMove(g, color, last)
}

// LegalMoves returns the legal moves of the piece on from, or of every
// piece of color when from is invalid.
func (m GameMode) LegalMoves(g *Grid, color Color, from Position, last *Move) []Move {
	var out []Move
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			sq := Position{File: f, Rank: r}
			if from.Valid() && sq != from {
				continue
			}
			if g[r][f].Empty() || g[r][f].Color != color {
				continue
			}
			for _, mv := range PseudoMoves(g, sq, last) {
				if m.IsValidMove(g, color, mv, last) {
					out = append(out, mv)
				}
			}
		}
	}
	return out
}

// Move applies a validated move to g. mover colors a promoted piece.
func (m GameMode) Move(g *Grid, mv Move, mover Color) {
	pc := g.At(mv.From)
	pc.Moved = true

	if mv.Castling && pc.Kind == King {
		kingside := mv.To.File == kingsideFile
		rookFrom, ok := castlingRook(g, pc.Color, mv.From, kingside)
		g.clear(mv.From)
		if !ok {
			g.set(mv.To, pc)
			return
		}
		rook := g.At(rookFrom)
		rook.Moved = true
		g.clear(rookFrom)
		g.set(mv.To, pc)
		g.set(castlingRookTarget(mv.From.Rank, kingside), rook)
		return
	}

	g.clear(mv.From)
	if mv.Capture {
		g.clear(Position{File: mv.To.File, Rank: mv.From.Rank})
	}
	if mv.Promotion {
		kind := mv.PromoteTo
		if !isPromotionKind(kind) {
			kind = Queen
		}
		pc = Piece{Kind: kind, Color: mover, Moved: true}
	}
	g.set(mv.To, pc)
}

func minMax(vals ...int) (int, int) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

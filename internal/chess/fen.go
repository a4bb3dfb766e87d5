package chess

import (
	"strconv"
	"strings"
)

func (b *Board) placement() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			pc := b.grid[r][f]
			if pc.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(pc.FENLetter())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// CastlingRights renders KQkq-style rights from unmoved kings and rooks.
func (b *Board) CastlingRights() string {
	var sb strings.Builder
	for _, c := range [2]Color{White, Black} {
		king := b.grid.FindKing(c)
		kp := b.grid.At(king)
		if !king.Valid() || kp.Moved || king.Rank != c.homeRank() {
			continue
		}
		for _, kingside := range [2]bool{true, false} {
			if _, ok := castlingRook(&b.grid, c, king, kingside); !ok {
				continue
			}
			l := byte('q')
			if kingside {
				l = 'k'
			}
			if c == White {
				l = l - 'a' + 'A'
			}
			sb.WriteByte(l)
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// EnPassantTarget is the square behind a pawn that just advanced two ranks.
func (b *Board) EnPassantTarget() Position {
	last := b.LastMove()
	if last == nil || abs(last.To.Rank-last.From.Rank) != 2 {
		return InvalidPosition
	}
	if b.grid.At(last.To).Kind != Pawn {
		return InvalidPosition
	}
	return Position{File: last.To.File, Rank: (last.From.Rank + last.To.Rank) / 2}
}

func sideLetter(c Color) string {
	if c == Black {
		return "b"
	}
	return "w"
}

// PositionKey identifies a position for repetition: placement, side to move
// and castling rights.
func (b *Board) PositionKey() string {
	return b.placement() + " " + sideLetter(b.turn) + " " + b.CastlingRights()
}

func (b *Board) FEN() string {
	fullmove := len(b.history)/2 + 1
	return strings.Join([]string{
		b.placement(),
		sideLetter(b.turn),
		b.CastlingRights(),
		b.EnPassantTarget().String(),
		strconv.Itoa(b.halfmove),
		strconv.Itoa(fullmove),
	}, " ")
}

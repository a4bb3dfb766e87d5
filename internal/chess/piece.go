package chess

import (
	"fmt"
	"strings"
)

type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Opponent() Color { return c ^ 1 }

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// homeRank is the back rank of the given side.
func (c Color) homeRank() int {
	if c == Black {
		return 7
	}
	return 0
}

func (c Color) pawnDir() int {
	if c == Black {
		return -1
	}
	return 1
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return White, fmt.Errorf("unknown color %q", s)
}

type Kind uint8

const (
	None Kind = iota
	Pawn
	Rook
	Knight
	Bishop
	Queen
	King
)

var kindLetters = [...]byte{None: '.', Pawn: 'p', Rook: 'r', Knight: 'n', Bishop: 'b', Queen: 'q', King: 'k'}

// Letter returns the lowercase FEN letter of the kind.
func (k Kind) Letter() byte {
	if int(k) >= len(kindLetters) {
		return '.'
	}
	return kindLetters[k]
}

func (k Kind) String() string {
	switch k {
	case Pawn:
		return "pawn"
	case Rook:
		return "rook"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "none"
}

func KindFromLetter(b byte) (Kind, bool) {
	switch b {
	case 'p', 'P':
		return Pawn, true
	case 'r', 'R':
		return Rook, true
	case 'n', 'N':
		return Knight, true
	case 'b', 'B':
		return Bishop, true
	case 'q', 'Q':
		return Queen, true
	case 'k', 'K':
		return King, true
	}
	return None, false
}

// PromotionKinds lists the pieces a pawn may promote to, strongest first.
func PromotionKinds() []Kind {
	return []Kind{Queen, Rook, Bishop, Knight}
}

func isPromotionKind(k Kind) bool {
	return k == Queen || k == Rook || k == Bishop || k == Knight
}

// Piece is stored by value in the grid. The zero value is an empty square.
type Piece struct {
	Kind  Kind
	Color Color
	Moved bool
}

func (p Piece) Empty() bool { return p.Kind == None }

// FENLetter is uppercase for white pieces.
func (p Piece) FENLetter() byte {
	l := p.Kind.Letter()
	if p.Color == White && l != '.' {
		return l - 'a' + 'A'
	}
	return l
}

// Grid is indexed [rank][file]; rank 0 is white's back rank.
type Grid [8][8]Piece

func (g *Grid) At(p Position) Piece {
	if !p.Valid() {
		return Piece{}
	}
	return g[p.Rank][p.File]
}

func (g *Grid) set(p Position, pc Piece) { g[p.Rank][p.File] = pc }

func (g *Grid) clear(p Position) { g[p.Rank][p.File] = Piece{} }

// FindKing returns InvalidPosition when the side has no king.
func (g *Grid) FindKing(c Color) Position {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			pc := g[r][f]
			if pc.Kind == King && pc.Color == c {
				return Position{File: f, Rank: r}
			}
		}
	}
	return InvalidPosition
}

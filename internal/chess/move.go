package chess

import (
	"fmt"
	"strings"
)

type Position struct {
	File int
	Rank int
}

var InvalidPosition = Position{File: -1, Rank: -1}

func (p Position) Valid() bool {
	return p.File >= 0 && p.File < 8 && p.Rank >= 0 && p.Rank < 8
}

func (p Position) add(df, dr int) Position {
	return Position{File: p.File + df, Rank: p.Rank + dr}
}

func (p Position) String() string {
	if !p.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + p.File), byte('1' + p.Rank)})
}

func ParseSquare(s string) (Position, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return InvalidPosition, fmt.Errorf("invalid square %q", s)
	}
	return Position{File: int(s[0] - 'a'), Rank: int(s[1] - '1')}, nil
}

// Move describes a single ply. Capture is only set for en-passant captures,
// where the captured pawn is not on the destination square.
type Move struct {
	From      Position
	To        Position
	Castling  bool
	Promotion bool
	Capture   bool
	PromoteTo Kind
}

func NewMove(from, to Position) Move { return Move{From: from, To: to} }

func (m Move) Valid() bool { return m.From.Valid() && m.To.Valid() }

// Equal compares endpoints only. Flags are looked up separately by callers.
func (m Move) Equal(o Move) bool { return m.From == o.From && m.To == o.To }

// UCI renders coordinate notation, e.g. e2e4 or e7e8q.
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion {
		k := m.PromoteTo
		if !isPromotionKind(k) {
			k = Queen
		}
		s += string(k.Letter())
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// ParseUCI reads <file><rank><file><rank>[qrbn]. Only endpoints and the
// promotion kind are filled in; the remaining flags come from move generation.
func ParseUCI(s string) (Move, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		k, ok := KindFromLetter(s[4])
		if !ok || !isPromotionKind(k) {
			return Move{}, fmt.Errorf("invalid promotion piece in %q", s)
		}
		m.Promotion = true
		m.PromoteTo = k
	}
	return m, nil
}

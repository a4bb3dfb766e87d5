package chess

import "time"

type Status int

const (
	InGame Status = iota
	Check
	EndGame
)

func (s Status) String() string {
	switch s {
	case Check:
		return "check"
	case EndGame:
		return "end_game"
	}
	return "in_game"
}

type EndReason string

const (
	ReasonNone       EndReason = ""
	ReasonCheckmate  EndReason = "checkmate"
	ReasonStalemate  EndReason = "stalemate"
	ReasonTimeout    EndReason = "timeout"
	ReasonRepetition EndReason = "repetition"
	ReasonResign     EndReason = "resign"
	ReasonDisconnect EndReason = "disconnect"
)

// Board owns the grid, move history, repetition log and clock of one game.
// It is not safe for concurrent use.
type Board struct {
	mode      GameMode
	grid      Grid
	turn      Color
	history   []Move
	positions []string
	halfmove  int
	clock     *Clock
}

func NewBoard(mode GameMode, clock *Clock) *Board {
	if clock == nil {
		clock = NewClock(0, 0)
	}
	b := &Board{mode: mode, turn: White, clock: clock}
	mode.Setup(&b.grid)
	b.positions = append(b.positions, b.PositionKey())
	return b
}

// NewTimedBoard is a shorthand for a board with a fresh clock.
func NewTimedBoard(mode GameMode, base, increment time.Duration) *Board {
	return NewBoard(mode, NewClock(base, increment))
}

func (b *Board) Mode() GameMode { return b.mode }

func (b *Board) Turn() Color { return b.turn }

func (b *Board) Clock() *Clock { return b.clock }

// Grid returns a copy of the squares.
func (b *Board) Grid() Grid { return b.grid }

func (b *Board) At(p Position) Piece { return b.grid.At(p) }

func (b *Board) History() []Move { return append([]Move(nil), b.history...) }

func (b *Board) LastMove() *Move {
	if len(b.history) == 0 {
		return nil
	}
	last := b.history[len(b.history)-1]
	return &last
}

func (b *Board) FindKing(c Color) Position { return b.grid.FindKing(c) }

func (b *Board) Remaining(c Color) time.Duration { return b.clock.Remaining(c) }

func (b *Board) UpdateClock() { b.clock.Update() }

func (b *Board) StopClock() { b.clock.Stop() }

func (b *Board) IsTimeUp() bool { return b.clock.TimeUp() }

// SelectableMoves lists the legal moves of the piece on pos when it belongs
// to the side to move.
func (b *Board) SelectableMoves(pos Position) []Move {
	if !pos.Valid() {
		return nil
	}
	pc := b.grid.At(pos)
	if pc.Empty() || pc.Color != b.turn {
		return nil
	}
	return b.mode.LegalMoves(&b.grid, b.turn, pos, b.LastMove())
}

// CastlingRook returns the square of the rook that castling move m takes
// along.
func (b *Board) CastlingRook(m Move) (Position, bool) {
	if !m.Castling || !m.Valid() {
		return InvalidPosition, false
	}
	return castlingRook(&b.grid, b.turn, m.From, m.To.File == kingsideFile)
}

func (b *Board) LegalMoves() []Move {
	return b.mode.LegalMoves(&b.grid, b.turn, InvalidPosition, b.LastMove())
}

func (b *Board) IsValidMove(m Move) bool {
	_, ok := b.resolve(m)
	return ok
}

// resolve matches m against the generated moves by endpoints and returns the
// generated move with its flags and the requested promotion kind.
func (b *Board) resolve(m Move) (Move, bool) {
	if !m.Valid() {
		return Move{}, false
	}
	pc := b.grid.At(m.From)
	if pc.Empty() || pc.Color != b.turn {
		return Move{}, false
	}
	last := b.LastMove()
	var fallback *Move
	for _, cand := range PseudoMoves(&b.grid, m.From, last) {
		if !cand.Equal(m) {
			continue
		}
		if cand.Promotion {
			cand.PromoteTo = m.PromoteTo
			if !isPromotionKind(cand.PromoteTo) {
				cand.PromoteTo = Queen
			}
		}
		if !b.mode.IsValidMove(&b.grid, b.turn, cand, last) {
			continue
		}
		if cand.Castling == m.Castling {
			return cand, true
		}
		if fallback == nil {
			c := cand
			fallback = &c
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Move{}, false
}

// MakeMove applies m for the side to move. It returns false and leaves the
// board untouched when the move is not legal.
func (b *Board) MakeMove(m Move) bool {
	mv, ok := b.resolve(m)
	if !ok {
		return false
	}
	if len(b.history) == 0 {
		b.clock.Start()
	}
	irreversible := b.grid.At(mv.From).Kind == Pawn || (!mv.Castling && !b.grid.At(mv.To).Empty())

	b.history = append(b.history, mv)
	b.mode.Move(&b.grid, mv, b.turn)
	b.turn = b.turn.Opponent()
	b.clock.SwitchTurn()

	if irreversible {
		b.halfmove = 0
	} else {
		b.halfmove++
	}
	b.positions = append(b.positions, b.PositionKey())
	return true
}

func (b *Board) InCheck() bool {
	return b.mode.IsInCheck(&b.grid, b.turn, b.LastMove())
}

func (b *Board) IsCheckmate() bool {
	return b.mode.IsCheckmate(&b.grid, b.turn, b.LastMove())
}

func (b *Board) IsStalemate() bool {
	return b.mode.IsStalemate(&b.grid, b.turn, b.LastMove())
}

// IsThreefold reports whether the current position occurred three times.
func (b *Board) IsThreefold() bool {
	if len(b.positions) == 0 {
		return false
	}
	cur := b.positions[len(b.positions)-1]
	n := 0
	for _, p := range b.positions {
		if p == cur {
			n++
		}
	}
	return n >= 3
}

func (b *Board) Status() Status {
	if b.EndReason() != ReasonNone {
		return EndGame
	}
	if b.InCheck() {
		return Check
	}
	return InGame
}

func (b *Board) EndReason() EndReason {
	if b.clock.TimeUp() {
		return ReasonTimeout
	}
	last := b.LastMove()
	inCheck := b.mode.IsInCheck(&b.grid, b.turn, last)
	if !b.mode.HasLegalMove(&b.grid, b.turn, last) {
		if inCheck {
			return ReasonCheckmate
		}
		return ReasonStalemate
	}
	if b.IsThreefold() {
		return ReasonRepetition
	}
	return ReasonNone
}

// Winner is only meaningful once Status is EndGame. ok is false for draws.
func (b *Board) Winner() (winner Color, ok bool) {
	if loser, expired := b.clock.Expired(); expired {
		return loser.Opponent(), true
	}
	if b.IsCheckmate() {
		return b.turn.Opponent(), true
	}
	return White, false
}

package chess

var (
	rookDirs    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	queenDirs   = append(append([][2]int{}, rookDirs...), bishopDirs...)
	knightSteps = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = queenDirs
)

const (
	kingsideFile  = 6
	queensideFile = 2
)

// PseudoMoves returns the moves of the piece on from that follow its
// movement pattern, without regard to the safety of its own king. Kings
// always propose both castling destinations; IsValidMove decides them.
func PseudoMoves(g *Grid, from Position, last *Move) []Move {
	pc := g.At(from)
	switch pc.Kind {
	case Pawn:
		return pawnMoves(g, from, pc, last)
	case Rook:
		return slideMoves(g, from, pc.Color, rookDirs)
	case Bishop:
		return slideMoves(g, from, pc.Color, bishopDirs)
	case Queen:
		return slideMoves(g, from, pc.Color, queenDirs)
	case Knight:
		return stepMoves(g, from, pc.Color, knightSteps)
	case King:
		moves := stepMoves(g, from, pc.Color, kingSteps)
		return append(moves,
			Move{From: from, To: Position{File: kingsideFile, Rank: from.Rank}, Castling: true},
			Move{From: from, To: Position{File: queensideFile, Rank: from.Rank}, Castling: true},
		)
	}
	return nil
}

func slideMoves(g *Grid, from Position, c Color, dirs [][2]int) []Move {
	var moves []Move
	for _, d := range dirs {
		to := from.add(d[0], d[1])
		for to.Valid() {
			target := g.At(to)
			if !target.Empty() {
				if target.Color != c {
					moves = append(moves, Move{From: from, To: to})
				}
				break
			}
			moves = append(moves, Move{From: from, To: to})
			to = to.add(d[0], d[1])
		}
	}
	return moves
}

func stepMoves(g *Grid, from Position, c Color, steps [][2]int) []Move {
	var moves []Move
	for _, d := range steps {
		to := from.add(d[0], d[1])
		if !to.Valid() {
			continue
		}
		if target := g.At(to); target.Empty() || target.Color != c {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

func pawnMoves(g *Grid, from Position, pc Piece, last *Move) []Move {
	var moves []Move
	dir := pc.Color.pawnDir()

	one := from.add(0, dir)
	if one.Valid() && g.At(one).Empty() {
		moves = append(moves, pawnMove(from, one))
		two := from.add(0, 2*dir)
		if !pc.Moved && two.Valid() && g.At(two).Empty() {
			moves = append(moves, pawnMove(from, two))
		}
	}

	for _, df := range [2]int{-1, 1} {
		to := from.add(df, dir)
		if !to.Valid() {
			continue
		}
		if target := g.At(to); !target.Empty() && target.Color != pc.Color {
			moves = append(moves, pawnMove(from, to))
			continue
		}
		if last == nil {
			continue
		}
		side := from.add(df, 0)
		if last.To != side || abs(last.To.Rank-last.From.Rank) != 2 {
			continue
		}
		victim := g.At(side)
		if victim.Kind == Pawn && victim.Color != pc.Color && g.At(to).Empty() {
			moves = append(moves, Move{From: from, To: to, Capture: true})
		}
	}
	return moves
}

func pawnMove(from, to Position) Move {
	return Move{From: from, To: to, Promotion: to.Rank == 0 || to.Rank == 7}
}

// Attacked reports whether any piece of side by attacks sq.
func Attacked(g *Grid, sq Position, by Color) bool {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			pc := g[r][f]
			if pc.Empty() || pc.Color != by {
				continue
			}
			from := Position{File: f, Rank: r}
			switch pc.Kind {
			case Pawn:
				dir := by.pawnDir()
				if from.add(-1, dir) == sq || from.add(1, dir) == sq {
					return true
				}
			case King:
				if abs(from.File-sq.File) <= 1 && abs(from.Rank-sq.Rank) <= 1 && from != sq {
					return true
				}
			default:
				for _, m := range PseudoMoves(g, from, nil) {
					if m.To == sq {
						return true
					}
				}
			}
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

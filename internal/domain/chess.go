package domain

import "time"

// Result tokens stored with finished games.
const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

// GameRecord is a finished game as persisted by the result repository.
type GameRecord struct {
	ID          string
	Variant     string
	Seed        int64
	White       string
	Black       string
	Result      string
	Method      string
	MovesUCI    []string
	MovesSAN    []string
	PGN         string
	TimeControl string
	StartedAt   time.Time
	EndedAt     time.Time
}

func (g *GameRecord) Duration() time.Duration {
	if g == nil || g.EndedAt.Before(g.StartedAt) {
		return 0
	}
	return g.EndedAt.Sub(g.StartedAt)
}

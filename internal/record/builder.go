package record

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/domain"
	"github.com/park285/chessduel/internal/obslog"
	"go.uber.org/zap"
)

// Outcome is how a game ended. Decisive is false for draws.
type Outcome struct {
	Winner   chess.Color
	Decisive bool
	Reason   chess.EndReason
}

// Meta carries the parts of a record the board does not know.
type Meta struct {
	ID        string
	White     string
	Black     string
	StartedAt time.Time
	EndedAt   time.Time
}

// BuildRecord captures a finished board. SAN is only produced for the
// standard variant.
func BuildRecord(b *chess.Board, out Outcome, meta Meta) *domain.GameRecord {
	rec := &domain.GameRecord{
		ID:          strings.TrimSpace(meta.ID),
		Variant:     string(b.Mode().Variant()),
		Seed:        b.Mode().Seed(),
		White:       labelOr(meta.White, "White"),
		Black:       labelOr(meta.Black, "Black"),
		Result:      resultToken(out),
		Method:      string(out.Reason),
		TimeControl: timeControl(b.Clock()),
		StartedAt:   meta.StartedAt,
		EndedAt:     meta.EndedAt,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}

	for _, mv := range b.History() {
		rec.MovesUCI = append(rec.MovesUCI, mv.UCI())
	}
	if b.Mode().Variant() == chess.VariantStandard {
		san, err := sanMoves(rec.MovesUCI)
		if err != nil {
			obslog.L().Warn("record_san_failed", zap.String("game", rec.ID), zap.Error(err))
		} else {
			rec.MovesSAN = san
		}
	}
	rec.PGN = BuildPGN(rec)
	return rec
}

// sanMoves replays UCI moves through the reference library to get SAN.
func sanMoves(moves []string) ([]string, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	out := make([]string, 0, len(moves))
	for i, raw := range moves {
		pos := game.Position()
		mv, err := notation.Decode(pos, raw)
		if err != nil {
			return nil, fmt.Errorf("decode ply %d %q: %w", i+1, raw, err)
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply ply %d %q: %w", i+1, raw, err)
		}
		out = append(out, san)
	}
	return out, nil
}

func resultToken(out Outcome) string {
	switch {
	case out.Reason == chess.ReasonNone:
		return ""
	case !out.Decisive:
		return domain.ResultDraw
	case out.Winner == chess.Black:
		return domain.ResultBlack
	default:
		return domain.ResultWhite
	}
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case domain.ResultWhite:
		return "1-0"
	case domain.ResultBlack:
		return "0-1"
	case domain.ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func timeControl(c *chess.Clock) string {
	if c == nil || c.Untimed() {
		return "-"
	}
	// PGN TimeControl: seconds+increment
	return fmt.Sprintf("%d+%d", int(c.Base().Seconds()), int(c.Increment().Seconds()))
}

// BuildPGN renders headers plus numbered SAN, falling back to UCI moves
// when SAN is unavailable.
func BuildPGN(g *domain.GameRecord) string {
	if g == nil {
		return ""
	}
	pgnResult := mapResultToPGN(g.Result)
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"Casual duel\"]\n")
	b.WriteString("[Site \"chessduel\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(g.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(g.Black)))
	if strings.TrimSpace(g.TimeControl) != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", sanitizePGN(g.TimeControl)))
	}
	if g.Variant != "" && g.Variant != string(chess.VariantStandard) {
		b.WriteString("[Variant \"Chess960\"]\n")
	}
	if strings.TrimSpace(g.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(g.Method)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	moves := g.MovesSAN
	if len(moves) == 0 {
		moves = g.MovesUCI
	}
	for i := 0; i < len(moves); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(moves[i])))
		if i+1 < len(moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func labelOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

package chesspresenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/domain"
	"github.com/park285/chessduel/internal/msgcat"
)

const (
	materialScoreNeutral = 39
	capturedRecentLimit  = 3
	recentMovesLimit     = 6
)

// BoardView is what one frame shows.
type BoardView struct {
	Board       *chess.Board
	Selected    chess.Position
	Highlights  []chess.Position
	Perspective chess.Color
}

var (
	whitePiece = color.New(color.FgHiWhite, color.Bold)
	blackPiece = color.New(color.FgHiRed, color.Bold)
	markSquare = color.New(color.FgYellow)
)

func init() {
	for _, c := range []*color.Color{whitePiece, blackPiece, markSquare} {
		c.EnableColor()
	}
}

// Formatter renders boards, prompts and records as terminal text.
type Formatter struct {
	messages *msgcat.Catalog
	paint    bool
}

func NewFormatter(messages *msgcat.Catalog) *Formatter {
	if messages == nil {
		messages = msgcat.MustDefault()
	}
	return &Formatter{messages: messages}
}

// EnableColor switches ANSI colouring of pieces and marks.
func (f *Formatter) EnableColor(on bool) { f.paint = on }

// Board draws the grid from the perspective side, then clocks, material
// and recent moves. Selected squares are bracketed, destinations starred.
func (f *Formatter) Board(v BoardView) string {
	if v.Board == nil {
		return ""
	}
	marks := make(map[chess.Position]bool, len(v.Highlights))
	for _, p := range v.Highlights {
		marks[p] = true
	}

	ranks := []int{7, 6, 5, 4, 3, 2, 1, 0}
	files := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if v.Perspective == chess.Black {
		ranks = []int{0, 1, 2, 3, 4, 5, 6, 7}
		files = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	var sb strings.Builder
	for _, r := range ranks {
		sb.WriteString(fmt.Sprintf("%d ", r+1))
		for _, fl := range files {
			pos := chess.Position{File: fl, Rank: r}
			sb.WriteString(f.cell(v.Board.At(pos), pos == v.Selected, marks[pos]))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  ")
	for _, fl := range files {
		sb.WriteString(fmt.Sprintf(" %c ", 'a'+fl))
	}
	sb.WriteByte('\n')

	if c := v.Board.Clock(); c != nil && !c.Untimed() {
		sb.WriteString(fmt.Sprintf("• clock  white %s  black %s\n",
			formatClock(v.Board.Remaining(chess.White)), formatClock(v.Board.Remaining(chess.Black))))
	}
	sb.WriteString("• material ")
	sb.WriteString(formatMaterial(materialOf(v.Board, chess.White), materialOf(v.Board, chess.Black)))
	sb.WriteByte('\n')
	if captured := formatCaptured(v.Board); captured != "" {
		sb.WriteString("• captured ")
		sb.WriteString(captured)
		sb.WriteByte('\n')
	}
	history := v.Board.History()
	if len(history) > 0 {
		moves := make([]string, 0, len(history))
		for _, m := range history {
			moves = append(moves, m.UCI())
		}
		sb.WriteString(fmt.Sprintf("• moves %d  %s\n", len(history), formatRecentMoves(moves)))
	}
	sb.WriteString(f.Status(v.Board))
	return sb.String()
}

func (f *Formatter) cell(p chess.Piece, selected, marked bool) string {
	text := plainCell(p, selected, marked)
	if !f.paint {
		return text
	}
	switch {
	case selected || marked:
		return markSquare.Sprint(text)
	case p.Empty():
		return text
	case p.Color == chess.White:
		return whitePiece.Sprint(text)
	}
	return blackPiece.Sprint(text)
}

func plainCell(p chess.Piece, selected, marked bool) string {
	letter := "."
	if !p.Empty() {
		letter = string(p.FENLetter())
	}
	switch {
	case selected:
		return "[" + letter + "]"
	case marked && p.Empty():
		return " * "
	case marked:
		return "*" + letter + " "
	}
	return " " + letter + " "
}

// Status is the one-line turn, check or game over notice.
func (f *Formatter) Status(b *chess.Board) string {
	if b == nil {
		return ""
	}
	data := map[string]any{"Color": title(b.Turn().String())}
	switch b.Status() {
	case chess.EndGame:
		reason := b.EndReason()
		winner, _ := b.Winner()
		end := map[string]any{
			"Winner": title(winner.String()),
			"Loser":  title(winner.Opponent().String()),
		}
		return f.messages.RenderOr("game.end."+string(reason), end, "Game over: "+string(reason)+".")
	case chess.Check:
		return f.messages.RenderOr("game.status.check", data, title(b.Turn().String())+" is in check.")
	}
	return f.messages.RenderOr("game.status.turn", data, title(b.Turn().String())+" to move.")
}

func (f *Formatter) Promotion(side chess.Color, kinds []chess.Kind) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, fmt.Sprintf("%c=%s", k.Letter(), k))
	}
	return fmt.Sprintf("%s promotes. Choose %s, or `cancel`.", title(side.String()), strings.Join(names, ", "))
}

func (f *Formatter) Waiting(code string) string {
	return f.messages.RenderOr("game.status.waiting", map[string]any{"Code": code}, "Waiting for opponent...")
}

func (f *Formatter) Started(side chess.Color) string {
	return f.messages.RenderOr("game.status.started", map[string]any{"Color": title(side.String())}, "Game started.")
}

func (f *Formatter) Help() string {
	return `♞ commands
• e2          select a square (again to deselect)
• e2e4        select and move in one line
• q r b n     choose a promotion piece
• cancel      cancel a pending promotion
• board       redraw the board
• resign      resign the game
• quit        leave without recording`
}

// Result summarises a finished record with its PGN.
func (f *Formatter) Result(rec *domain.GameRecord) string {
	if rec == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s by %s\n", formatResultBadge(rec.Result), rec.Result, rec.Method))
	sb.WriteString(fmt.Sprintf("• %s vs %s, %d moves", rec.White, rec.Black, len(rec.MovesUCI)))
	if d := formatGameDuration(rec.Duration()); d != "" {
		sb.WriteString(", " + d)
	}
	sb.WriteString("\n\n")
	sb.WriteString(rec.PGN)
	return sb.String()
}

// History lists recent records, newest first.
func (f *Formatter) History(games []*domain.GameRecord) string {
	if len(games) == 0 {
		return "No games recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("♜ recent games\n")
	for _, g := range games {
		moves := g.MovesSAN
		if len(moves) == 0 {
			moves = g.MovesUCI
		}
		sb.WriteString(fmt.Sprintf("• %s %s %s vs %s (%s, %d moves) %s\n",
			formatResultBadge(g.Result), formatShortTime(g.EndedAt), g.White, g.Black, g.Variant, len(moves), g.Method))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}

func formatRecentMoves(moves []string) string {
	if len(moves) == 0 {
		return "-"
	}
	if len(moves) <= recentMovesLimit {
		return strings.Join(moves, " ")
	}
	return "… " + strings.Join(moves[len(moves)-recentMovesLimit:], " ")
}

func formatResultBadge(result string) string {
	switch result {
	case domain.ResultWhite:
		return "♔"
	case domain.ResultBlack:
		return "♚"
	case domain.ResultDraw:
		return "½"
	default:
		return "·"
	}
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatGameDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

var pieceValues = map[chess.Kind]int{chess.Pawn: 1, chess.Knight: 3, chess.Bishop: 3, chess.Rook: 5, chess.Queen: 9}

var startingCounts = map[chess.Kind]int{chess.Pawn: 8, chess.Knight: 2, chess.Bishop: 2, chess.Rook: 2, chess.Queen: 1}

func materialOf(b *chess.Board, c chess.Color) int {
	total := 0
	grid := b.Grid()
	for r := range grid {
		for _, p := range grid[r] {
			if !p.Empty() && p.Color == c {
				total += pieceValues[p.Kind]
			}
		}
	}
	return total
}

func formatMaterial(white, black int) string {
	whiteCaptured := materialScoreNeutral - black
	blackCaptured := materialScoreNeutral - white
	if whiteCaptured < 0 {
		whiteCaptured = 0
	}
	if blackCaptured < 0 {
		blackCaptured = 0
	}

	var parts []string
	if whiteCaptured > 0 {
		parts = append(parts, fmt.Sprintf("white +%d", whiteCaptured))
	}
	if blackCaptured > 0 {
		parts = append(parts, fmt.Sprintf("black +%d", blackCaptured))
	}
	if len(parts) == 0 {
		return "even"
	}
	return strings.Join(parts, " / ")
}

// capturedBy lists the pieces side c has taken, strongest first.
func capturedBy(b *chess.Board, c chess.Color) []chess.Kind {
	counts := map[chess.Kind]int{}
	grid := b.Grid()
	for r := range grid {
		for _, p := range grid[r] {
			if !p.Empty() && p.Color == c.Opponent() {
				counts[p.Kind]++
			}
		}
	}
	var out []chess.Kind
	for _, k := range []chess.Kind{chess.Queen, chess.Rook, chess.Bishop, chess.Knight, chess.Pawn} {
		for n := startingCounts[k] - counts[k]; n > 0; n-- {
			out = append(out, k)
		}
	}
	return out
}

func formatCaptured(b *chess.Board) string {
	white := formatCapturedSequence(recentPieces(capturedBy(b, chess.White), capturedRecentLimit))
	black := formatCapturedSequence(recentPieces(capturedBy(b, chess.Black), capturedRecentLimit))
	if white == "" && black == "" {
		return ""
	}
	var parts []string
	if white != "" {
		parts = append(parts, "white "+white)
	}
	if black != "" {
		parts = append(parts, "black "+black)
	}
	return strings.Join(parts, " / ")
}

func formatCapturedSequence(order []chess.Kind) string {
	if len(order) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(order))
	for _, k := range order {
		tokens = append(tokens, strings.ToUpper(string(k.Letter())))
	}
	return strings.Join(tokens, " ")
}

func recentPieces(order []chess.Kind, limit int) []chess.Kind {
	if len(order) == 0 || limit <= 0 {
		return nil
	}
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

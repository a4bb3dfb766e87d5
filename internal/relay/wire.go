package relay

import (
	"fmt"
	"strings"

	"github.com/park285/chessduel/internal/chess"
)

// FrameType tags every websocket message.
type FrameType string

const (
	FrameGameConfig FrameType = "game_config"
	FrameStartGame  FrameType = "start_game"
	FrameMove       FrameType = "move"
	FrameGameOver   FrameType = "game_over"
	FrameDisconnect FrameType = "disconnect"
)

// Frame is one JSON message on the wire. Only the field matching Type is set.
type Frame struct {
	Type   FrameType   `json:"type"`
	Config *GameConfig `json:"config,omitempty"`
	Move   *MoveFrame  `json:"move,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// GameConfig is what a peer proposes and, from the relay, what it is assigned.
type GameConfig struct {
	Color            string `json:"color"`
	TimeMinutes      int    `json:"time_minutes"`
	IncrementSeconds int    `json:"increment_seconds"`
	Variant          string `json:"variant"`
	Seed             int64  `json:"seed"`
}

func (c GameConfig) Validate() error {
	if _, err := chess.ParseColor(c.Color); err != nil {
		return err
	}
	if _, err := chess.ParseVariant(c.Variant); err != nil {
		return err
	}
	if c.TimeMinutes < 0 || c.IncrementSeconds < 0 {
		return fmt.Errorf("negative time control %d+%d", c.TimeMinutes, c.IncrementSeconds)
	}
	return nil
}

// sameVariant compares after normalising aliases (960, chess960, fischer).
func sameVariant(a, b string) bool {
	va, errA := chess.ParseVariant(a)
	vb, errB := chess.ParseVariant(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return va == vb
}

func oppositeColor(c string) string {
	col, err := chess.ParseColor(c)
	if err != nil {
		return chess.Black.String()
	}
	return col.Opponent().String()
}

// MoveFrame carries a move with its flags and promotion kind.
type MoveFrame struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Castling  bool   `json:"castling,omitempty"`
	Promotion bool   `json:"promotion,omitempty"`
	Capture   bool   `json:"capture,omitempty"`
	PromoteTo string `json:"promote_to,omitempty"`
}

func NewMoveFrame(m chess.Move) MoveFrame {
	f := MoveFrame{
		From:      m.From.String(),
		To:        m.To.String(),
		Castling:  m.Castling,
		Promotion: m.Promotion,
		Capture:   m.Capture,
	}
	if m.Promotion && m.PromoteTo != chess.None {
		f.PromoteTo = string(m.PromoteTo.Letter())
	}
	return f
}

func (f MoveFrame) ToMove() (chess.Move, error) {
	from, err := chess.ParseSquare(f.From)
	if err != nil {
		return chess.Move{}, err
	}
	to, err := chess.ParseSquare(f.To)
	if err != nil {
		return chess.Move{}, err
	}
	m := chess.Move{From: from, To: to, Castling: f.Castling, Promotion: f.Promotion, Capture: f.Capture}
	if p := strings.TrimSpace(f.PromoteTo); p != "" {
		kind, ok := chess.KindFromLetter(strings.ToLower(p)[0])
		if !ok {
			return chess.Move{}, fmt.Errorf("bad promotion kind %q", p)
		}
		m.PromoteTo = kind
	}
	return m, nil
}

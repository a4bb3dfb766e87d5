package chesspresenter

import (
	"strings"

	"github.com/park285/chessduel/internal/chess"
)

// Presenter delivers notices and board frames through an injected sink so
// the controller never touches the terminal directly.
type Presenter struct {
	sendMessage func(message string) error
	formatter   *Formatter
}

func NewPresenter(sendMessage func(message string) error, formatter *Formatter) *Presenter {
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	return &Presenter{sendMessage: sendMessage, formatter: formatter}
}

func (p *Presenter) send(text string) {
	if p == nil || p.sendMessage == nil || strings.TrimSpace(text) == "" {
		return
	}
	_ = p.sendMessage(text)
}

func (p *Presenter) ShowMessage(text string) {
	p.send(text)
}

func (p *Presenter) ShowPromotion(color chess.Color, kinds []chess.Kind) {
	p.send(p.formatter.Promotion(color, kinds))
}

// Board sends a rendered frame followed by an optional status line.
func (p *Presenter) Board(view BoardView, message string) {
	p.send(p.formatter.Board(view))
	p.send(message)
}

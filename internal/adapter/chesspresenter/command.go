package chesspresenter

import (
	"fmt"
	"strings"

	"github.com/park285/chessduel/internal/chess"
)

type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdClick
	CmdMove
	CmdPromote
	CmdCancel
	CmdBoard
	CmdResign
	CmdHelp
	CmdQuit
)

// Command is one parsed line of terminal input.
type Command struct {
	Kind    CommandKind
	Squares []chess.Position
	Promote chess.Kind
}

func ParseCommand(line string) (Command, error) {
	s := strings.ToLower(strings.TrimSpace(line))
	switch s {
	case "":
		return Command{Kind: CmdNone}, nil
	case "cancel", "c":
		return Command{Kind: CmdCancel}, nil
	case "board", "show":
		return Command{Kind: CmdBoard}, nil
	case "resign":
		return Command{Kind: CmdResign}, nil
	case "help", "?":
		return Command{Kind: CmdHelp}, nil
	case "quit", "exit":
		return Command{Kind: CmdQuit}, nil
	case "q", "r", "b", "n", "queen", "rook", "bishop", "knight":
		k, _ := chess.KindFromLetter(promotionLetter(s))
		return Command{Kind: CmdPromote, Promote: k}, nil
	}

	switch len(s) {
	case 2:
		p, err := chess.ParseSquare(s)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdClick, Squares: []chess.Position{p}}, nil
	case 4, 5:
		m, err := chess.ParseUCI(s)
		if err != nil {
			return Command{}, err
		}
		cmd := Command{Kind: CmdMove, Squares: []chess.Position{m.From, m.To}}
		if m.Promotion {
			cmd.Promote = m.PromoteTo
		}
		return cmd, nil
	}
	return Command{}, fmt.Errorf("unrecognised input %q, try `help`", line)
}

func promotionLetter(s string) byte {
	if s == "knight" {
		return 'n'
	}
	return s[0]
}

package engine

import (
	"fmt"
	"os"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// Book answers opening positions from a polyglot file.
type Book struct {
	book *chesslib.PolyglotBook
}

func OpenBook(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return &Book{book: book}, nil
}

// Lookup returns the heaviest book move for fen that is legal there.
func (b *Book) Lookup(fen string) (string, bool) {
	if b == nil || b.book == nil {
		return "", false
	}
	hashStr, err := chesslib.NewZobristHasher().HashPosition(fen)
	if err != nil {
		return "", false
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return "", false
	}

	option, err := chesslib.FEN(fen)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		decoded := chesslib.DecodeMove(entry.Move).ToMove()
		move := decoded.String()
		game := chesslib.NewGame(option)
		if err := game.PushNotationMove(move, chesslib.UCINotation{}, nil); err == nil {
			return move, true
		}
	}
	return "", false
}

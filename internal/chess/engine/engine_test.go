package engine

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	chesslib "github.com/corentings/chess/v2"
)

const fakeEngineEnv = "CHESSDUEL_FAKE_ENGINE"

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestMain(m *testing.M) {
	if os.Getenv(fakeEngineEnv) != "" {
		runFakeEngine()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runFakeEngine() {
	in := bufio.NewScanner(os.Stdin)
	side := "w"
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "uci":
			fmt.Println("uciok")
		case line == "isready":
			fmt.Println("readyok")
		case strings.HasPrefix(line, "position fen "):
			if f := strings.Fields(line); len(f) > 3 {
				side = f[3]
			}
		case strings.HasPrefix(line, "go"):
			mv := "d2d4"
			if side == "b" {
				mv = "d7d5"
			}
			fmt.Printf("info depth 1 multipv 1 score cp 20 pv %s\n", mv)
			fmt.Printf("bestmove %s\n", mv)
		case line == "quit":
			return
		}
	}
}

func TestGetPresetAliases(t *testing.T) {
	cases := map[string]string{
		"":             "level1",
		"beginner":     "level1",
		"Intermediate": "level5",
		"advanced":     "level7",
		"max":          "level8",
		"level3":       "level3",
	}
	for in, want := range cases {
		p, err := GetPreset(in)
		if err != nil {
			t.Fatalf("GetPreset(%q): %v", in, err)
		}
		if p.Name != want {
			t.Fatalf("GetPreset(%q) = %s, want %s", in, p.Name, want)
		}
	}
	if _, err := GetPreset("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestPresetsAreValid(t *testing.T) {
	for name := range presets {
		p, _ := GetPreset(name)
		if err := ValidatePreset(p); err != nil {
			t.Fatalf("preset %s invalid: %v", name, err)
		}
	}
}

func TestValidatePresetRejectsBadWeights(t *testing.T) {
	p, _ := GetPreset("level5")
	p.CandidateWeights = []float64{0, 0, 0}
	if err := ValidatePreset(p); err == nil {
		t.Fatalf("expected zero-sum weights to fail")
	}
	p, _ = GetPreset("level5")
	p.PrimaryChoices = 9
	if err := ValidatePreset(p); err == nil {
		t.Fatalf("expected primary choices above multipv to fail")
	}
}

func TestBuildGoCommandThinkOverride(t *testing.T) {
	p, _ := GetPreset("level4")
	args, err := BuildGoCommand(p, 0)
	if err != nil {
		t.Fatalf("BuildGoCommand: %v", err)
	}
	if got := strings.Join(args, " "); got != "go depth 10 movetime 140" {
		t.Fatalf("unexpected go command %q", got)
	}

	args, err = BuildGoCommand(p, 750*time.Millisecond)
	if err != nil {
		t.Fatalf("BuildGoCommand: %v", err)
	}
	if got := strings.Join(args, " "); got != "go depth 10 movetime 750" {
		t.Fatalf("unexpected go command with think budget %q", got)
	}
}

func TestOptionsCarryChess960(t *testing.T) {
	p, _ := GetPreset("level2")
	opt := options(p, true)
	if !opt.Chess960 || opt.Elo != 700 || opt.MultiPV != 5 {
		t.Fatalf("unexpected options %+v", opt)
	}
}

func TestSelectCandidateSinglePrimaryAlwaysFirst(t *testing.T) {
	p, _ := GetPreset("level8")
	cands := []Candidate{{Move: "e2e4", EvalCP: 30}, {Move: "d2d4", EvalCP: 25}}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		c, err := SelectCandidate(p, cands, r)
		if err != nil {
			t.Fatalf("SelectCandidate: %v", err)
		}
		if c.Move != "e2e4" {
			t.Fatalf("expected first candidate, got %s", c.Move)
		}
	}
}

func TestSelectCandidateStaysWithinPrimaryChoices(t *testing.T) {
	p, _ := GetPreset("level1")
	cands := []Candidate{{Move: "a"}, {Move: "b"}, {Move: "c"}, {Move: "d"}, {Move: "e"}}
	r := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		c, err := SelectCandidate(p, cands, r)
		if err != nil {
			t.Fatalf("SelectCandidate: %v", err)
		}
		seen[c.Move] = true
		if c.EvalCP < -p.EvalNoise || c.EvalCP > p.EvalNoise {
			t.Fatalf("eval noise out of range: %d", c.EvalCP)
		}
	}
	if seen["d"] || seen["e"] {
		t.Fatalf("picked a candidate beyond the primary choices: %v", seen)
	}
	if !seen["a"] || !seen["b"] || !seen["c"] {
		t.Fatalf("expected every primary choice to appear: %v", seen)
	}
}

func TestSelectCandidateEmpty(t *testing.T) {
	p, _ := GetPreset("level1")
	if _, err := SelectCandidate(p, nil, rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

func TestBuiltinFindsMateInOne(t *testing.T) {
	e := NewBuiltin(2, false)
	mv, err := e.BestMove(context.Background(), "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", 0)
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if mv != "a1a8" {
		t.Fatalf("expected back-rank mate a1a8, got %s", mv)
	}
}

func TestBuiltinTakesHangingQueen(t *testing.T) {
	e := NewBuiltin(0, false)
	mv, err := e.BestMove(context.Background(), "4k3/8/8/3q4/8/8/8/3QK3 w - - 0 1", 0)
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if mv != "d1d5" {
		t.Fatalf("expected d1d5, got %s", mv)
	}
}

func TestBuiltinReturnsLegalOpeningMove(t *testing.T) {
	e := NewBuiltin(2, false)
	mv, err := e.BestMove(context.Background(), startFEN, time.Second)
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	game := chesslib.NewGame()
	if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
		t.Fatalf("builtin produced illegal move %q: %v", mv, err)
	}
}

func TestBuiltinNoMoveWhenStalemated(t *testing.T) {
	e := NewBuiltin(2, false)
	_, err := e.BestMove(context.Background(), "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", 0)
	if !errors.Is(err, ErrNoMove) {
		t.Fatalf("expected ErrNoMove, got %v", err)
	}
}

func TestWithoutCastling(t *testing.T) {
	got := withoutCastling(startFEN)
	if got != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1" {
		t.Fatalf("unexpected fen %q", got)
	}
	if withoutCastling("bad") != "bad" {
		t.Fatalf("short fen should pass through")
	}
}

func TestOpenBookErrors(t *testing.T) {
	if _, err := OpenBook("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := OpenBook(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestBookLookupStartPosition(t *testing.T) {
	hashStr, err := chesslib.NewZobristHasher().HashPosition(startFEN)
	if err != nil {
		t.Fatalf("HashPosition: %v", err)
	}
	// e2e4: to e4 (file 4, row 3), from e2 (file 4, row 1)
	entry := make([]byte, 16)
	binary.BigEndian.PutUint64(entry[0:8], chesslib.ZobristHashToUint64(hashStr))
	binary.BigEndian.PutUint16(entry[8:10], 4|3<<3|4<<6|1<<9)
	binary.BigEndian.PutUint16(entry[10:12], 100)

	path := filepath.Join(t.TempDir(), "book.bin")
	if err := os.WriteFile(path, entry, 0o600); err != nil {
		t.Fatalf("write book: %v", err)
	}
	book, err := OpenBook(path)
	if err != nil {
		t.Fatalf("OpenBook: %v", err)
	}
	mv, ok := book.Lookup(startFEN)
	if !ok || mv != "e2e4" {
		t.Fatalf("expected e2e4 from book, got %q ok=%v", mv, ok)
	}
	if _, ok := book.Lookup("4k3/8/8/8/8/8/8/4K3 w - - 0 1"); ok {
		t.Fatalf("unexpected book hit for bare kings")
	}

	var nilBook *Book
	if _, ok := nilBook.Lookup(startFEN); ok {
		t.Fatalf("nil book should never hit")
	}
}

func TestStockfishBestMoveWithFakeEngine(t *testing.T) {
	t.Setenv(fakeEngineEnv, "1")
	p, _ := GetPreset("level6")
	ctx := context.Background()
	sf, err := NewStockfish(ctx, os.Args[0], p, WithSeed(3))
	if err != nil {
		t.Fatalf("NewStockfish: %v", err)
	}
	defer sf.Close()

	mv, err := sf.BestMove(ctx, "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if mv != "d7d5" {
		t.Fatalf("expected d7d5, got %s", mv)
	}

	if err := sf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sf.BestMove(ctx, startFEN, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestNewStockfishFailsForMissingBinary(t *testing.T) {
	p, _ := GetPreset("level1")
	if _, err := NewStockfish(context.Background(), filepath.Join(t.TempDir(), "nope"), p); err == nil {
		t.Fatalf("expected startup failure for missing binary")
	}
}

func TestParseMove(t *testing.T) {
	m, err := ParseMove("a7a8n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.UCI() != "a7a8n" || !m.Promotion {
		t.Fatalf("unexpected move %+v", m)
	}
	for _, bad := range []string{"", "(none)", "e2", "e2e9", "a7a8k"} {
		if _, err := ParseMove(bad); !errors.Is(err, ErrNoMove) {
			t.Fatalf("%q: expected ErrNoMove, got %v", bad, err)
		}
	}
}

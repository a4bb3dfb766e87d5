package chessbuilder

import (
	"context"
	"path/filepath"
	"testing"

	corechess "github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/chess/engine"
	"github.com/park285/chessduel/internal/config"
	"github.com/park285/chessduel/internal/record"
)

func TestNewWithoutExternalServices(t *testing.T) {
	cfg := &config.AppConfig{EnginePreset: "level3"}
	deps, err := New(context.Background(), cfg, corechess.Standard(), true, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer deps.Close()
	if _, ok := deps.Engine.(*engine.Builtin); !ok {
		t.Fatalf("expected builtin engine, got %T", deps.Engine)
	}
	if deps.Repo == nil {
		t.Fatalf("expected memory repository")
	}

	move, err := deps.Engine.BestMove(context.Background(), corechess.NewBoard(corechess.Standard(), nil).FEN(), 0)
	if err != nil || len(move) < 4 {
		t.Fatalf("builtin engine should answer the start position, got %q %v", move, err)
	}
}

func TestNewSkipsEngineWhenNotNeeded(t *testing.T) {
	deps, err := New(context.Background(), &config.AppConfig{StockfishPath: "/definitely/missing"}, corechess.Standard(), false, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if deps.Engine != nil {
		t.Fatalf("engine should not be opened")
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenEngineErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenEngine(ctx, &config.AppConfig{StockfishPath: "/bin/true", EnginePreset: "grandmaster-ish"}, corechess.Standard(), nil); err == nil {
		t.Fatalf("expected unknown preset error")
	}
	missing := filepath.Join(t.TempDir(), "stockfish")
	if _, err := OpenEngine(ctx, &config.AppConfig{StockfishPath: missing, EnginePreset: "level1"}, corechess.Standard(), nil); err == nil {
		t.Fatalf("expected error for missing engine binary")
	}
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, err := OpenRepository(context.Background(), &config.AppConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if repo == nil {
		t.Fatalf("nil repository")
	}
	var _ record.Repository = repo
	if _, err := OpenRepository(context.Background(), &config.AppConfig{DatabaseURL: "postgres://127.0.0.1:1/none?sslmode=disable&connect_timeout=1"}); err == nil {
		t.Fatalf("expected unreachable database error")
	}
}

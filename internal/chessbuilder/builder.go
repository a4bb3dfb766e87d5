package chessbuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	corechess "github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/chess/engine"
	"github.com/park285/chessduel/internal/config"
	"github.com/park285/chessduel/internal/controller"
	"github.com/park285/chessduel/internal/record"
)

// Deps are the long-lived collaborators of one duel process.
type Deps struct {
	Engine controller.MoveSource
	Repo   record.Repository
}

// New opens the result repository and, when needEngine is set, the move
// engine for mode.
func New(ctx context.Context, cfg *config.AppConfig, mode corechess.GameMode, needEngine bool, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps := &Deps{Repo: repo}
	if needEngine {
		deps.Engine, err = OpenEngine(ctx, cfg, mode, logger)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	return deps, nil
}

// Close releases the engine and the repository.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var first error
	if d.Engine != nil {
		first = d.Engine.Close()
	}
	if d.Repo != nil {
		if err := d.Repo.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenRepository uses postgres when DATABASE_URL is set, memory otherwise.
func OpenRepository(ctx context.Context, cfg *config.AppConfig) (record.Repository, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return record.NewMemoryRepository(), nil
	}
	repo, err := record.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init result repository: %w", err)
	}
	return repo, nil
}

// OpenEngine starts the external UCI engine when STOCKFISH_PATH is set and
// falls back to the builtin searcher otherwise. An unreadable opening book
// is logged and skipped; a broken engine binary is an error.
func OpenEngine(ctx context.Context, cfg *config.AppConfig, mode corechess.GameMode, logger *zap.Logger) (controller.MoveSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chess960 := mode.Variant() == corechess.VariantFischer
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		logger.Info("engine_builtin", zap.Bool("chess960", chess960))
		return engine.NewBuiltin(0, chess960), nil
	}

	preset, err := engine.GetPreset(cfg.EnginePreset)
	if err != nil {
		return nil, err
	}
	opts := []engine.StockfishOption{engine.WithChess960(chess960)}
	if path := strings.TrimSpace(cfg.OpeningBook); path != "" && !chess960 {
		book, err := engine.OpenBook(path)
		if err != nil {
			logger.Warn("opening_book_unavailable", zap.String("path", path), zap.Error(err))
		} else {
			opts = append(opts, engine.WithBook(book))
		}
	}
	if chess960 && mode.Seed() != 0 {
		opts = append(opts, engine.WithSeed(mode.Seed()))
	}

	eng, err := engine.NewStockfish(ctx, cfg.StockfishPath, preset, opts...)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	logger.Info("engine_stockfish", zap.String("preset", preset.Name), zap.Bool("chess960", chess960))
	return eng, nil
}

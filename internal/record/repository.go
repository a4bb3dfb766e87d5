package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chessduel/internal/domain"
)

var ErrNilRecord = errors.New("nil game record")

// Repository stores finished games.
type Repository interface {
	SaveResult(ctx context.Context, g *domain.GameRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
	Close() error
}

const schema = `CREATE TABLE IF NOT EXISTS duel_games (
    game_id      TEXT PRIMARY KEY,
    variant      TEXT NOT NULL,
    seed         BIGINT NOT NULL DEFAULT 0,
    white_name   TEXT NOT NULL,
    black_name   TEXT NOT NULL,
    time_control TEXT NOT NULL DEFAULT '',
    result       TEXT NOT NULL,
    result_method TEXT NOT NULL,
    moves_uci    JSONB NOT NULL,
    moves_san    JSONB NOT NULL,
    pgn          TEXT NOT NULL,
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL DEFAULT 0
)`

type pgRepository struct {
	db *sql.DB
}

// OpenPostgres connects, pings and makes sure the games table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return NewPostgresRepository(db), nil
}

func NewPostgresRepository(db *sql.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts by game id.
func (r *pgRepository) SaveResult(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return ErrNilRecord
	}
	movesUCI, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	q := `INSERT INTO duel_games (
        game_id, variant, seed, white_name, black_name, time_control,
        result, result_method, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (game_id) DO UPDATE SET
        variant=EXCLUDED.variant,
        seed=EXCLUDED.seed,
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        time_control=EXCLUDED.time_control,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	var started sql.NullTime
	if !g.StartedAt.IsZero() {
		started = sql.NullTime{Time: g.StartedAt, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, q,
		g.ID, g.Variant, g.Seed, g.White, g.Black, g.TimeControl,
		g.Result, g.Method, string(movesUCI), string(movesSAN), g.PGN,
		started, g.EndedAt, g.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

func (r *pgRepository) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT game_id, variant, seed, white_name, black_name, time_control,
        result, result_method, moves_uci, moves_san, pgn, started_at, ended_at
      FROM duel_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent games: %w", err)
	}
	defer rows.Close()

	var out []*domain.GameRecord
	for rows.Next() {
		var (
			g        domain.GameRecord
			movesUCI []byte
			movesSAN []byte
			started  sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.Variant, &g.Seed, &g.White, &g.Black, &g.TimeControl,
			&g.Result, &g.Method, &movesUCI, &movesSAN, &g.PGN, &started, &g.EndedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if started.Valid {
			g.StartedAt = started.Time
		}
		if err := json.Unmarshal(movesUCI, &g.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
		if err := json.Unmarshal(movesSAN, &g.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package record

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/chessduel/internal/domain"
)

// memRepository keeps results in process when no database is configured.
type memRepository struct {
	mu    sync.RWMutex
	games map[string]*domain.GameRecord
}

func NewMemoryRepository() Repository {
	return &memRepository{games: make(map[string]*domain.GameRecord)}
}

func (m *memRepository) SaveResult(_ context.Context, g *domain.GameRecord) error {
	if g == nil {
		return ErrNilRecord
	}
	cp := clone(g)
	m.mu.Lock()
	m.games[g.ID] = cp
	m.mu.Unlock()
	return nil
}

func (m *memRepository) Recent(_ context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	out := make([]*domain.GameRecord, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, clone(g))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepository) Close() error { return nil }

func clone(g *domain.GameRecord) *domain.GameRecord {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}

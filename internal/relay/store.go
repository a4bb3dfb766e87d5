package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MatchState is the lifecycle of a relayed match.
type MatchState string

const (
	StateLobby    MatchState = "LOBBY"
	StateActive   MatchState = "ACTIVE"
	StateFinished MatchState = "FINISHED"
	StateAborted  MatchState = "ABORTED"
)

// MatchMeta is the bookkeeping kept for each match. Moves are never stored.
type MatchMeta struct {
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	State     MatchState  `json:"state"`
	Peers     int         `json:"peers"`
	Host      *GameConfig `json:"host,omitempty"`
	Guest     *GameConfig `json:"guest,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store persists match metadata for the status endpoint.
type Store interface {
	Save(ctx context.Context, m *MatchMeta) error
	Load(ctx context.Context, id string) (*MatchMeta, error)
	List(ctx context.Context) ([]*MatchMeta, error)
}

const ttlMatch = 24 * time.Hour

type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// OpenRedisStore parses a redis:// URL and pings the server.
func OpenRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) keyMatch(id string) string { return "duel:match:" + strings.TrimSpace(id) }
func (s *RedisStore) keyIndex() string          { return "duel:matches" }

func (s *RedisStore) Save(ctx context.Context, m *MatchMeta) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return errors.New("match meta without id")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyMatch(m.ID), raw, ttlMatch)
	pipe.SAdd(ctx, s.keyIndex(), m.ID)
	pipe.Expire(ctx, s.keyIndex(), ttlMatch)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save match %s: %w", m.ID, err)
	}
	return nil
}

// Load returns nil, nil for unknown or expired ids.
func (s *RedisStore) Load(ctx context.Context, id string) (*MatchMeta, error) {
	raw, err := s.rdb.Get(ctx, s.keyMatch(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m MatchMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns matches newest first and prunes expired ids from the index.
func (s *RedisStore) List(ctx context.Context) ([]*MatchMeta, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*MatchMeta
	for _, id := range ids {
		m, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		out = append(out, m)
	}
	sortNewestFirst(out)
	return out, nil
}

type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]MatchMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]MatchMeta)}
}

func (s *MemoryStore) Save(_ context.Context, m *MatchMeta) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return errors.New("match meta without id")
	}
	s.mu.Lock()
	s.matches[m.ID] = *m
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*MatchMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*MatchMeta, error) {
	s.mu.RLock()
	out := make([]*MatchMeta, 0, len(s.matches))
	for _, m := range s.matches {
		cp := m
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(ms []*MatchMeta) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}

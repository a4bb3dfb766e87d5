package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

var ErrPoolClosed = errors.New("uci pool closed")

type PoolConfig struct {
	BinaryPath string
	// PerPresetCapacity caps live processes per distinct Options value.
	// Zero picks a default from the CPU count.
	PerPresetCapacity int
}

// Pool keeps warm engine processes keyed by their Options so repeated
// searches skip the handshake.
type Pool struct {
	binary   string
	capacity int

	mu     sync.Mutex
	closed bool
	groups map[Options]*group
	owner  map[*Session]*group
}

// group is the set of sessions sharing one Options value. A token in
// slots is spent for every live process and returned when it dies.
type group struct {
	opt   Options
	slots chan struct{}
	idle  chan *Session
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("engine binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary: %w", err)
	}
	capacity := cfg.PerPresetCapacity
	if capacity <= 0 {
		capacity = min(max(runtime.NumCPU(), 2), 4)
	}
	return &Pool{
		binary:   cfg.BinaryPath,
		capacity: capacity,
		groups:   make(map[Options]*group),
		owner:    make(map[*Session]*group),
	}, nil
}

// Acquire hands out an idle session for opt, starts a new one while under
// capacity, or waits for a release.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	g, err := p.group(opt)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case s := <-g.idle:
			if p.revive(ctx, s) {
				return s, nil
			}
			continue
		default:
		}

		select {
		case s := <-g.idle:
			if p.revive(ctx, s) {
				return s, nil
			}
		case g.slots <- struct{}{}:
			s, err := NewSession(ctx, p.binary, g.opt)
			if err != nil {
				<-g.slots
				return nil, err
			}
			p.adopt(s, g)
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns s to its group. A non-nil err means the session is
// suspect and is closed instead.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	g, ok := p.owner[s]
	closed := p.closed
	p.mu.Unlock()
	if !ok {
		_ = s.Close()
		return
	}
	if err == nil && !closed {
		select {
		case g.idle <- s:
			return
		default:
		}
	}
	p.retire(s)
}

// Close kills every session, idle or busy, so in-flight searches return.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	live := make([]*Session, 0, len(p.owner))
	for s := range p.owner {
		live = append(live, s)
	}
	p.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := p.retire(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) group(opt Options) (*group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	g, ok := p.groups[opt]
	if !ok {
		g = &group{
			opt:   opt,
			slots: make(chan struct{}, p.capacity),
			idle:  make(chan *Session, p.capacity),
		}
		p.groups[opt] = g
	}
	return g, nil
}

func (p *Pool) adopt(s *Session, g *group) {
	p.mu.Lock()
	p.owner[s] = g
	p.mu.Unlock()
}

// revive checks an idle session before reuse and retires it if the
// engine stopped answering.
func (p *Pool) revive(ctx context.Context, s *Session) bool {
	if err := s.EnsureReady(ctx); err != nil {
		p.retire(s)
		return false
	}
	return true
}

// retire closes s and frees its slot. Only the first call for a session
// frees the slot.
func (p *Pool) retire(s *Session) error {
	p.mu.Lock()
	g, ok := p.owner[s]
	delete(p.owner, s)
	p.mu.Unlock()
	err := s.Close()
	if ok {
		<-g.slots
	}
	return err
}

package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessduel/internal/obslog"
)

const (
	handshakeTimeout = 4 * time.Second
	readyAttempts    = 3
	readyBackoff     = 150 * time.Millisecond
	outputBuffer     = 64
)

var ErrSessionClosed = errors.New("uci session closed")

// Session owns one engine process. Searches are serialized; Close may be
// called from any goroutine and unblocks a search in progress.
type Session struct {
	proc *exec.Cmd
	log  *zap.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	searchMu sync.Mutex
	output   chan string

	quit     chan struct{}
	quitOnce sync.Once
	quitErr  error
}

// NewSession starts binaryPath and runs the uci handshake with opt. The
// process is not tied to ctx; only the handshake is.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	proc := exec.Command(binaryPath)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := proc.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		proc:   proc,
		log:    obslog.Named("uci"),
		stdin:  stdin,
		output: make(chan string, outputBuffer),
		quit:   make(chan struct{}),
	}
	go s.readLoop(bufio.NewScanner(stdout))

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.log.Debug("uci_session_started", zap.String("binary", binaryPath), zap.Int("pid", proc.Process.Pid))
	return s, nil
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.roundTrip(ctx, "uci", "uciok"); err != nil {
		return err
	}
	for _, cmd := range opt.commands() {
		if err := s.writeLine(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.roundTrip(ctx, "isready", "readyok")
}

// EnsureReady pings the engine and waits for readyok.
func (s *Session) EnsureReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	return s.roundTrip(ctx, "isready", "readyok")
}

// NewGame clears engine state between positions that share no history.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.writeLine("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if err = s.EnsureReady(ctx); err == nil || errors.Is(err, ErrSessionClosed) {
			return err
		}
		if attempt == readyAttempts {
			break
		}
		s.log.Warn("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyBackoff):
		}
	}
	return err
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResult struct {
	BestMove   string
	Candidates []Candidate
}

// Search sets up the position and waits for bestmove, collecting every
// multipv line reported on the way.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	args, err := GoArgs(req.Limits)
	if err != nil {
		return SearchResult{}, err
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	position := positionLine(req.FEN, req.Moves)
	if err := s.writeLine(position); err != nil {
		return SearchResult{}, fmt.Errorf("send position: %w", err)
	}
	if err := s.writeLine(strings.Join(args, " ")); err != nil {
		return SearchResult{}, fmt.Errorf("send go: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Limits.timeout())
	defer cancel()

	seen := make(map[int]Candidate)
	for {
		line, err := s.next(ctx)
		if err != nil {
			s.log.Warn("uci_search_aborted", zap.String("position", position), zap.Strings("go", args), zap.Error(err))
			return SearchResult{}, fmt.Errorf("read engine output: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if rank, c, ok := infoLine(line); ok {
				seen[rank] = c
			}
		case strings.HasPrefix(line, "bestmove"):
			return SearchResult{BestMove: bestMoveLine(line), Candidates: ranked(seen)}, nil
		}
	}
}

// Close asks the engine to quit, then kills it. Safe to call repeatedly.
func (s *Session) Close() error {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.writeMu.Lock()
		_, _ = io.WriteString(s.stdin, "quit\n")
		_ = s.stdin.Close()
		s.writeMu.Unlock()

		_ = s.proc.Process.Kill()
		var exitErr *exec.ExitError
		if err := s.proc.Wait(); err != nil && !errors.As(err, &exitErr) {
			s.quitErr = err
		}
	})
	return s.quitErr
}

func (s *Session) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Session) writeLine(cmd string) error {
	if s.closed() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}

// roundTrip sends cmd and discards output until a line containing want.
func (s *Session) roundTrip(ctx context.Context, cmd, want string) error {
	if err := s.writeLine(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	for {
		line, err := s.next(ctx)
		if err != nil {
			return fmt.Errorf("wait %s: %w", want, err)
		}
		if strings.Contains(line, want) {
			return nil
		}
	}
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.quit:
		return "", ErrSessionClosed
	case line, ok := <-s.output:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (s *Session) readLoop(sc *bufio.Scanner) {
	defer close(s.output)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.output <- line:
		case <-s.quit:
			return
		}
	}
}

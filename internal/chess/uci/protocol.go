package uci

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mateScore stands in for "mate in N" so mates sort above any material score.
const mateScore = 30000

var errNoLimits = errors.New("no search limits specified")

// Options are the setoption values sent once after the handshake. The
// struct is comparable and doubles as the pool key.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
	Chess960   bool
}

func (o Options) Validate() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", o.HashMB)
	case o.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	return nil
}

func (o Options) commands() []string {
	threads := o.Threads
	if threads <= 0 {
		threads = 1
	}
	set := func(name string, value any) string {
		return fmt.Sprintf("setoption name %s value %v", name, value)
	}
	out := []string{
		set("Threads", threads),
		set("Hash", o.HashMB),
		set("Skill Level", o.SkillLevel),
		set("MultiPV", o.MultiPV),
		set("Move Overhead", 100),
	}
	if o.Elo > 0 {
		out = append(out, set("UCI_LimitStrength", true), set("UCI_Elo", o.Elo))
	}
	if o.Chess960 {
		out = append(out, set("UCI_Chess960", true))
	}
	return out
}

// Limits bound one search. Zero fields are not sent.
type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// GoArgs renders l as the tokens of a go command.
func GoArgs(l Limits) ([]string, error) {
	args := []string{"go"}
	for _, kv := range []struct {
		name string
		v    int
	}{{"depth", l.Depth}, {"movetime", l.MoveTimeMillis}, {"nodes", l.NodeCap}} {
		if kv.v > 0 {
			args = append(args, kv.name, strconv.Itoa(kv.v))
		}
	}
	if len(args) == 1 {
		return nil, errNoLimits
	}
	return args, nil
}

// timeout is how long a search may run before the session gives up on
// bestmove.
func (l Limits) timeout() time.Duration {
	switch {
	case l.MoveTimeMillis > 0:
		return 3 * (time.Duration(l.MoveTimeMillis)*time.Millisecond + 2*time.Second)
	case l.Depth > 0:
		d := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(d, 6*time.Second), 20*time.Second)
	default:
		return 6 * time.Second
	}
}

func positionLine(fen string, moves []string) string {
	var sb strings.Builder
	sb.WriteString("position ")
	if fen = strings.TrimSpace(fen); fen == "" || fen == "startpos" {
		sb.WriteString("startpos")
	} else {
		sb.WriteString("fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// Candidate is one principal variation reported during a search.
type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

// infoLine extracts the multipv index and variation from an info line.
// Lines without a pv are skipped.
func infoLine(line string) (int, Candidate, bool) {
	f := strings.Fields(line)
	rank, score := 1, 0
	for i := 0; i < len(f); i++ {
		switch f[i] {
		case "multipv":
			if i+1 < len(f) {
				if v, err := strconv.Atoi(f[i+1]); err == nil {
					rank = v
				}
				i++
			}
		case "score":
			if i+2 >= len(f) {
				continue
			}
			if v, err := strconv.Atoi(f[i+2]); err == nil {
				score = scoreValue(f[i+1], v)
			}
			i += 2
		case "pv":
			if i+1 >= len(f) {
				return 0, Candidate{}, false
			}
			pv := append([]string(nil), f[i+1:]...)
			return rank, Candidate{Move: pv[0], EvalCP: score, Principal: pv}, true
		}
	}
	return 0, Candidate{}, false
}

func scoreValue(kind string, v int) int {
	if kind != "mate" {
		return v
	}
	if v < 0 {
		return -mateScore
	}
	return mateScore
}

// bestMoveLine returns the move of a bestmove line, or "" for (none).
func bestMoveLine(line string) string {
	f := strings.Fields(line)
	if len(f) < 2 || f[1] == "(none)" {
		return ""
	}
	return f[1]
}

func ranked(byRank map[int]Candidate) []Candidate {
	if len(byRank) == 0 {
		return nil
	}
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	out := make([]Candidate, len(ranks))
	for i, r := range ranks {
		out[i] = byRank[r]
	}
	return out
}

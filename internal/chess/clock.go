package chess

import "time"

// Clock is a two-sided countdown. It is created paused with white to move.
// A non-positive base disables time control.
type Clock struct {
	remaining [2]time.Duration
	base      time.Duration
	increment time.Duration
	turn      Color
	paused    bool
	untimed   bool
	last      time.Time
	now       func() time.Time
}

func NewClock(base, increment time.Duration) *Clock {
	return &Clock{
		remaining: [2]time.Duration{base, base},
		base:      base,
		increment: increment,
		turn:      White,
		paused:    true,
		untimed:   base <= 0,
		now:       time.Now,
	}
}

// SetNow replaces the time source.
func (c *Clock) SetNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

func (c *Clock) Start() {
	if !c.paused {
		return
	}
	c.paused = false
	c.last = c.now()
}

func (c *Clock) Stop() {
	c.Update()
	c.paused = true
}

// Update charges the wall time elapsed since the last call to the side to move.
func (c *Clock) Update() {
	if c.paused || c.untimed {
		return
	}
	now := c.now()
	elapsed := now.Sub(c.last)
	c.last = now
	if elapsed <= 0 {
		return
	}
	c.remaining[c.turn] -= elapsed
	if c.remaining[c.turn] < 0 {
		c.remaining[c.turn] = 0
	}
}

// SwitchTurn credits the increment to the side that just moved and flips.
// It does nothing while paused.
func (c *Clock) SwitchTurn() {
	if c.paused {
		return
	}
	c.Update()
	if !c.untimed {
		c.remaining[c.turn] += c.increment
	}
	c.turn = c.turn.Opponent()
}

func (c *Clock) Remaining(color Color) time.Duration { return c.remaining[color] }

// Base is the starting time per side.
func (c *Clock) Base() time.Duration { return c.base }

func (c *Clock) Increment() time.Duration { return c.increment }

func (c *Clock) Turn() Color { return c.turn }

func (c *Clock) Paused() bool { return c.paused }

func (c *Clock) Untimed() bool { return c.untimed }

func (c *Clock) TimeUp() bool {
	if c.untimed {
		return false
	}
	return c.remaining[White] <= 0 || c.remaining[Black] <= 0
}

// Expired returns the side whose time ran out.
func (c *Clock) Expired() (Color, bool) {
	if c.untimed {
		return White, false
	}
	if c.remaining[White] <= 0 {
		return White, true
	}
	if c.remaining[Black] <= 0 {
		return Black, true
	}
	return White, false
}

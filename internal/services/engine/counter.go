package engine

import (
	"time"

	"github.com/ccc1236/coinsph-trading-bot/config"
)

// DailyCounter bounds the number of positions opened per day. Depending on
// configuration the day is either a trailing 24-hour window or a calendar
// day. The counter is not safe for concurrent use on its own; the engine's
// mutex serializes access.
type DailyCounter struct {
	window config.DailyWindow
	opens  []time.Time
}

// NewDailyCounter creates a counter with the configured reset rule.
func NewDailyCounter(window config.DailyWindow) *DailyCounter {
	return &DailyCounter{window: window}
}

// Increment records one position open at the given time.
func (c *DailyCounter) Increment(now time.Time) {
	c.prune(now)
	c.opens = append(c.opens, now)
}

// Count returns the number of opens inside the current window.
func (c *DailyCounter) Count(now time.Time) int {
	c.prune(now)

	n := 0
	for _, t := range c.opens {
		if c.inWindow(t, now) {
			n++
		}
	}
	return n
}

func (c *DailyCounter) inWindow(t, now time.Time) bool {
	if c.window == config.DailyWindowCalendar {
		ty, tm, td := t.Date()
		ny, nm, nd := now.Date()
		return ty == ny && tm == nm && td == nd
	}
	return now.Sub(t) < 24*time.Hour && !t.After(now)
}

// prune drops entries that can never count again.
func (c *DailyCounter) prune(now time.Time) {
	cutoff := now.Add(-48 * time.Hour)
	kept := c.opens[:0]
	for _, t := range c.opens {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.opens = kept
}

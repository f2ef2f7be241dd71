package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/quadchat/quadchat/internal/user"
)

const (
	DefaultMax    = 10
	DefaultWindow = 60 * time.Second
)

// Limiter is a per-user sliding-window admission check for outgoing chat
// messages. The budget is global across rooms. Timestamps older than the
// window are pruned lazily on each call; a rejected attempt is not
// recorded, so spamming while over budget does not extend the penalty.
type Limiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	now      func() time.Time
	attempts map[user.ID][]time.Time
}

func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:      max,
		window:   window,
		now:      time.Now,
		attempts: make(map[user.ID][]time.Time),
	}
}

// Admit reports whether the user may send another message now. When the
// budget is exhausted, the detail string is suitable for showing to the
// user.
func (l *Limiter) Admit(id user.ID) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.attempts[id][:0]
	for _, ts := range l.attempts[id] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		l.attempts[id] = recent
		return false, fmt.Sprintf("Rate limit exceeded. Maximum %d messages per %d seconds.", l.max, int(l.window.Seconds()))
	}

	l.attempts[id] = append(recent, now)
	return true, ""
}

// Reset clears the user's window entirely.
func (l *Limiter) Reset(id user.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, id)
}

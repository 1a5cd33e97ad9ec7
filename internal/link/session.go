package link

import "time"

// Session is the bookkeeping of one connect cycle. A fresh Session is
// created per cycle; nothing leaks between cycles.
type Session struct {
	Attempt      int
	StartedAt    time.Time
	Backoff      time.Duration
	LastErr      error
	reachedReady bool
}

func newSession(attempt int, backoff time.Duration) *Session {
	return &Session{
		Attempt:   attempt,
		StartedAt: time.Now(),
		Backoff:   backoff,
	}
}

package clockfake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-sync/internal/clock"
)

var _ clock.Sleeper = (*FakeSleeper)(nil)

// FakeSleeper records requested delays and returns immediately.
type FakeSleeper struct {
	delays []time.Duration
	lock   sync.Mutex
}

// NewFakeSleeper creates a sleeper that returns immediately and records each delay.
func NewFakeSleeper() *FakeSleeper {
	return &FakeSleeper{}
}

func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.lock.Lock()
	s.delays = append(s.delays, d)
	s.lock.Unlock()
	return ctx.Err()
}

// Delays returns a copy of every delay requested so far.
func (s *FakeSleeper) Delays() []time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

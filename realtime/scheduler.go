// Package realtime adapts the teacher's tick-based RealtimeRuntime into a
// one-shot delayed-send scheduler (SPEC_FULL.md §5.1): SCXML delays are
// per-send wall-clock offsets, not frame-synchronized ticks, so each
// scheduled send gets its own timer rather than a shared tick loop. The
// panic-recovery wrapper from the teacher's tickLoop is kept. Each scheduled
// send gets a sequence number, used only to identify it in panic logs; the
// timers are independent, so the order in which sends with (near-)identical
// delays fire is not defined.
package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler implements scxmlgo.DelayScheduler: Schedule(d, fire) (cancel).
type Scheduler struct {
	mu          sync.Mutex
	seq         uint64
	logger      *slog.Logger
}

// NewScheduler creates a Scheduler. A nil logger falls back to slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Schedule arranges for fire to run after d elapses, on its own timer, with
// panic recovery so a misbehaving callback can't take down the process
// (adapted from RealtimeRuntime.tickLoop's recover wrapper). The returned
// cancel function stops the timer; it is a no-op if fire already ran.
func (s *Scheduler) Schedule(d time.Duration, fire func()) (cancel func()) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("realtime: recovered panic in scheduled send", "seq", seq, "panic", r)
			}
		}()
		fire()
	})
	return func() { timer.Stop() }
}

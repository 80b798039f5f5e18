// Package schedule runs delayed callbacks. Production code uses timers; tests
// collapse or step delays explicitly.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after d. The returned func cancels a callback that has not fired yet.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// Timers schedules on the runtime timer wheel.
type Timers struct{}

func (Timers) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Immediate ignores the delay and runs fn synchronously on the caller's goroutine.
type Immediate struct{}

func (Immediate) After(_ time.Duration, fn func()) func() {
	fn()
	return func() {}
}

// Manual queues callbacks until the test advances virtual time.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	queue []*task
}

type task struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// NewManual returns a scheduler at virtual time zero.
func NewManual() *Manual { return &Manual{} }

func (m *Manual) After(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &task{at: m.now + d, seq: m.seq, fn: fn}
	m.queue = append(m.queue, t)
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// Pending counts queued, uncancelled callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, running every callback that falls due in
// deadline order. Callbacks scheduled while advancing run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	deadline := m.now + d
	m.mu.Unlock()

	for {
		t := m.popDue(deadline)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = deadline
	m.mu.Unlock()
}

// RunAll drains the queue regardless of delay, up to limit callbacks. It reports how many ran.
func (m *Manual) RunAll(limit int) int {
	ran := 0
	for ran < limit {
		t := m.popDue(-1)
		if t == nil {
			break
		}
		t.fn()
		ran++
	}
	return ran
}

// popDue removes and returns the earliest task due by deadline; a negative deadline means any.
func (m *Manual) popDue(deadline time.Duration) *task {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.queue[:0]
	for _, t := range m.queue {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.queue = live
	if len(m.queue) == 0 {
		return nil
	}
	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].at != m.queue[j].at {
			return m.queue[i].at < m.queue[j].at
		}
		return m.queue[i].seq < m.queue[j].seq
	})
	next := m.queue[0]
	if deadline >= 0 && next.at > deadline {
		return nil
	}
	m.queue = m.queue[1:]
	if next.at > m.now {
		m.now = next.at
	}
	return next
}

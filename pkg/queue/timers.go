package queue

import (
	"sync"
	"time"
)

// Timers is the in-process delayed job list used when the coordination
// cache is not available. Jobs live only in this process and are lost on
// restart.
type Timers struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer
	next   uint64
	closed bool
	wg     sync.WaitGroup
}

func NewTimers() *Timers {
	return &Timers{timers: make(map[uint64]*time.Timer)}
}

// Schedule runs fn once after delay.
func (t *Timers) Schedule(delay time.Duration, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTimersClosed
	}

	id := t.next
	t.next++
	t.wg.Add(1)
	t.timers[id] = time.AfterFunc(max(delay, 0), func() {
		defer t.wg.Done()

		t.mu.Lock()
		_, live := t.timers[id]
		delete(t.timers, id)
		t.mu.Unlock()

		if live {
			fn()
		}
	})
	return nil
}

// Len returns the number of jobs not yet started.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Close drops pending jobs and waits for running ones.
func (t *Timers) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for id, timer := range t.timers {
		if timer.Stop() {
			t.wg.Done()
		}
		delete(t.timers, id)
	}
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

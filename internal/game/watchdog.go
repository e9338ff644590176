package game

import (
	"sync"
	"time"
)

// watchdog arms one countdown per live game. The timer is re-armed on every
// accepted move and disarmed the moment the game leaves IN_PROGRESS, so a
// stale timeout can never fire after a legitimate finish.
type watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timers  map[string]*time.Timer
	expire  func(gameID string)
	stopped bool
}

func newWatchdog(timeout time.Duration, expire func(string)) *watchdog {
	return &watchdog{
		timeout: timeout,
		timers:  make(map[string]*time.Timer),
		expire:  expire,
	}
}

func (w *watchdog) arm(gameID string) {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[gameID]; ok {
		t.Stop()
	}
	w.timers[gameID] = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		delete(w.timers, gameID)
		stopped := w.stopped
		w.mu.Unlock()
		if !stopped {
			w.expire(gameID)
		}
	})
}

func (w *watchdog) disarm(gameID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[gameID]; ok {
		t.Stop()
		delete(w.timers, gameID)
	}
}

func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

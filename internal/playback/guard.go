package playback

import (
	"fmt"
	"sync"
)

// Guard is a process-wide scoped resource a session holds for its whole
// lifetime. It is acquired during session construction and released on
// every exit path, including setup failures.
type Guard interface {
	// Acquire claims the resource and returns its release function.
	// Release is idempotent.
	Acquire() (release func(), err error)
}

// Slot is the default Guard: a single playback slot per process. A second
// session cannot start while one is active; the server tears down the old
// session first.
type Slot struct {
	mu   sync.Mutex
	held bool
}

// NewSlot creates an unheld playback slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Acquire claims the slot or fails if a session already holds it.
func (s *Slot) Acquire() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return nil, fmt.Errorf("playback slot already in use")
	}
	s.held = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.held = false
			s.mu.Unlock()
		})
	}
	return release, nil
}

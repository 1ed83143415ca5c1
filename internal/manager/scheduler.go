package manager

import (
	"sync"
	"time"
)

// TimerClass distinguishes the two independent timers a channel can hold.
// Arming a class replaces any previous timer of the same class for that
// channel; the other class is untouched.
type TimerClass int

const (
	// TimerInactivity stops the game when nobody has acted for a while.
	TimerInactivity TimerClass = iota
	// TimerDelayedMove triggers the bot's scheduled system move.
	TimerDelayedMove
)

// Scheduler is the injected timer service the manager schedules through.
// Keeping it behind an interface lets tests fake time and would let a
// multi-process deployment swap in a durable scheduler.
type Scheduler interface {
	// Arm schedules fn after d, replacing any pending timer of the same
	// class for the channel.
	Arm(class TimerClass, channelID string, d time.Duration, fn func())

	// Cancel drops the pending timer of the given class, if any.
	Cancel(class TimerClass, channelID string)

	// CancelChannel drops every pending timer for the channel.
	CancelChannel(channelID string)

	// After schedules a one-shot callback not tied to a channel timer
	// slot. Used for the end-game deferral.
	After(d time.Duration, fn func())

	// Stop cancels everything. Called on shutdown; a stopped scheduler
	// silently drops new work.
	Stop()
}

type timerKey struct {
	class     TimerClass
	channelID string
}

// timerScheduler is the in-process Scheduler backed by time.AfterFunc.
// Timers live only in this map; they do not survive a restart, which is
// why the manager sweeps stale GAME channels at startup.
type timerScheduler struct {
	mu      sync.Mutex
	timers  map[timerKey]*time.Timer
	stopped bool
}

// NewScheduler creates the real timer-backed scheduler.
func NewScheduler() Scheduler {
	return &timerScheduler{timers: make(map[timerKey]*time.Timer)}
}

func (s *timerScheduler) Arm(class TimerClass, channelID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.armLocked(timerKey{class: class, channelID: channelID}, d, fn)
}

// armLocked installs a timer under s.mu. The callback runs fn only while
// its own timer still occupies the slot: a replaced timer that expired
// before Stop could catch it must neither fire nor evict its replacement
// from the map.
func (s *timerScheduler) armLocked(key timerKey, d time.Duration, fn func()) {
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.stopped || s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

func (s *timerScheduler) Cancel(class TimerClass, channelID string) {
	key := timerKey{class: class, channelID: channelID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

func (s *timerScheduler) CancelChannel(channelID string) {
	s.Cancel(TimerInactivity, channelID)
	s.Cancel(TimerDelayedMove, channelID)
}

func (s *timerScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	time.AfterFunc(d, fn)
}

func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

package collector

import (
	"sync"
	"time"
)

// soloBurstKey groups standalone media events that arrive without a burst
// identifier into a single debounce window.
const soloBurstKey = "solo"

// session tracks the in-flight state of one user's collection session. Two
// locks split the work: mu guards the in-memory fields (timers, closed state)
// and is only ever held for the mutation itself, while queueMu serializes the
// durable-queue operations (enqueue, commit, flush) so a commit's
// list-append-clear cycle cannot interleave with a submit for the same
// session. queueMu may take mu briefly; mu never waits on queueMu.
type session struct {
	albumID string
	userID  int64

	queueMu sync.Mutex

	mu        sync.Mutex
	timers    map[string]*burstTimer
	closed    bool
	closedErr error
}

// burstTimer is the debounce timer for one burst key. gen increments on every
// rearm so a fire from a superseded timer can recognize itself as stale.
type burstTimer struct {
	gen   uint64
	timer *time.Timer
}

func newSession(albumID string, userID int64) *session {
	return &session{
		albumID: albumID,
		userID:  userID,
		timers:  make(map[string]*burstTimer),
	}
}

func normalizeBurstKey(key string) string {
	if key == "" {
		return soloBurstKey
	}
	return key
}

// rearm replaces the burst's timer and returns the generation the new timer
// carries. Callers must hold s.mu.
func (s *session) rearm(key string, d time.Duration, fire func(gen uint64)) uint64 {
	bt, ok := s.timers[key]
	if !ok {
		bt = &burstTimer{}
		s.timers[key] = bt
	}
	if bt.timer != nil {
		bt.timer.Stop()
	}
	bt.gen++
	gen := bt.gen
	bt.timer = time.AfterFunc(d, func() { fire(gen) })
	return gen
}

// currentGen reports the live generation for a burst key. Callers must hold
// s.mu.
func (s *session) currentGen(key string) (uint64, bool) {
	bt, ok := s.timers[key]
	if !ok {
		return 0, false
	}
	return bt.gen, true
}

// stopTimers cancels every pending debounce timer. Callers must hold s.mu.
func (s *session) stopTimers() {
	for _, bt := range s.timers {
		if bt.timer != nil {
			bt.timer.Stop()
		}
	}
	s.timers = make(map[string]*burstTimer)
}

// close marks the session dead and records the error later submissions
// should see. Callers must hold s.mu.
func (s *session) close(reason error) {
	s.closed = true
	s.closedErr = reason
	s.stopTimers()
}

// closeState reports whether the session was closed and why.
func (s *session) closeState() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closedErr
}

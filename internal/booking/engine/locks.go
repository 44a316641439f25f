package engine

import "sync"

// streamLocks hands out one mutex per stream id. Entries are retained for the
// process lifetime; the key space is bounded by the slot and slot-participant
// population, which stays small enough not to warrant eviction.
type streamLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStreamLocks() *streamLocks {
	return &streamLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for streamID and returns its release func.
func (s *streamLocks) lock(streamID string) func() {
	s.mu.Lock()
	m, ok := s.locks[streamID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[streamID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

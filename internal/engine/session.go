package engine

import (
	"sync"

	"github.com/synapsemind/backend/internal/model/discussion"
)

// entry mirrors a persisted user or assistant message in memory; it is the
// material the engine builds model context from. System messages are not
// mirrored. The mirror is rebuilt empty when a session is re-initialized
// after a process restart.
type entry struct {
	role    discussion.Role
	speaker string
	content string
}

// session is the transient orchestration state of one active session. The
// immutable fields are set at initialization; the mutable ones are guarded
// by mu because Stop and the round driver touch them from different
// goroutines.
type session struct {
	id           string
	topic        string
	participants []discussion.Provider
	maxRounds    int
	temperature  float64
	maxTokens    int

	mu           sync.Mutex
	currentRound int
	running      bool
	transcript   []entry
}

func (s *session) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *session) halt() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *session) advanceRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRound++
	return s.currentRound
}

func (s *session) round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRound
}

func (s *session) append(e entry) {
	s.mu.Lock()
	s.transcript = append(s.transcript, e)
	s.mu.Unlock()
}

func (s *session) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// tail returns a copy of the most recent n transcript entries.
func (s *session) tail(n int) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if len(s.transcript) > n {
		start = len(s.transcript) - n
	}
	out := make([]entry, len(s.transcript)-start)
	copy(out, s.transcript[start:])
	return out
}

// bySpeaker returns up to limit transcript entries spoken by name.
func (s *session) bySpeaker(name string, limit int) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entry
	for _, e := range s.transcript {
		if e.speaker == name {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

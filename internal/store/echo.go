package store

import (
	"strings"
	"sync"
)

// defaultEchoCapacity bounds how many of the agent's own outbound messages
// are remembered for echo detection.
const defaultEchoCapacity = 10

// EchoSet remembers the literal text of the agent's most recent outbound
// messages so inbound events that are really the provider echoing our own
// reply can be ignored. It is process-local and rebuilt empty on restart;
// the brief post-restart window where an echo could slip through is a
// known, bounded risk.
type EchoSet struct {
	mu    sync.Mutex
	cap   int
	order []string
	set   map[string]struct{}
}

func NewEchoSet(capacity int) *EchoSet {
	if capacity <= 0 {
		capacity = defaultEchoCapacity
	}
	return &EchoSet{
		cap: capacity,
		set: make(map[string]struct{}),
	}
}

// Add records sent text, evicting the oldest entry past capacity.
func (e *EchoSet) Add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.set[text]; ok {
		return
	}
	e.order = append(e.order, text)
	e.set[text] = struct{}{}
	if len(e.order) > e.cap {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.set, oldest)
	}
}

// Contains reports whether text matches a recent outbound message.
// Comparison is trimmed exact equality.
func (e *EchoSet) Contains(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.set[text]
	return ok
}

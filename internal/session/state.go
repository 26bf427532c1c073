// Package session coordinates hotkey events: it owns the busy flag and the
// chunk queue and runs the capture, query and paste flows.
package session

import "sync"

// DeliveryState is the position of the chunk queue.
type DeliveryState int

const (
	Idle      DeliveryState = iota // no chunks
	Staged                         // cursor < len(chunks)
	Exhausted                      // cursor == len(chunks)
)

func (d DeliveryState) String() string {
	switch d {
	case Staged:
		return "staged"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// State is the process-wide session tuple. Every field is read and written
// only under mu, and mu is never held across I/O.
type State struct {
	mu      sync.Mutex
	busy    bool
	chunks  []string
	cursor  int
	gen     uint64
	exiting bool
	done    chan struct{}
}

// NewState returns an idle, not-busy state.
func NewState() *State {
	return &State{done: make(chan struct{})}
}

// TryBegin marks the session busy. It returns false, changing nothing, if
// a cycle is already running.
func (s *State) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// End clears the busy flag.
func (s *State) End() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Busy reports whether a capture cycle is running.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Stage replaces the queue with chunks and rewinds the cursor. Staging an
// empty slice is the same as Reset.
func (s *State) Stage(chunks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append([]string(nil), chunks...)
	s.cursor = 0
	s.gen++
}

// Reset empties the queue.
func (s *State) Reset() {
	s.Stage(nil)
}

// Claim is the chunk handed out by ClaimNext.
type Claim struct {
	Chunk string
	Index int // 0-based position of Chunk
	Total int

	// Next is the chunk that follows, valid when HasNext.
	Next    string
	HasNext bool

	gen uint64
}

// ClaimNext takes the chunk at the cursor and advances past it. The
// returned state is the queue's state before the claim; only Staged comes
// with a valid Claim.
func (s *State) ClaimNext() (Claim, DeliveryState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.deliveryLocked()
	if st != Staged {
		return Claim{}, st
	}
	c := Claim{
		Chunk: s.chunks[s.cursor],
		Index: s.cursor,
		Total: len(s.chunks),
		gen:   s.gen,
	}
	s.cursor++
	if s.cursor < len(s.chunks) {
		c.Next, c.HasNext = s.chunks[s.cursor], true
	}
	return c, Staged
}

// Current reports whether the queue c was claimed from is still the
// staged one, so a late pre-stage never clobbers a newer answer.
func (s *State) Current(c Claim) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.gen == s.gen
}

// Delivery returns the queue's state.
func (s *State) Delivery() DeliveryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveryLocked()
}

func (s *State) deliveryLocked() DeliveryState {
	switch {
	case len(s.chunks) == 0:
		return Idle
	case s.cursor < len(s.chunks):
		return Staged
	default:
		return Exhausted
	}
}

// Snapshot is a consistent copy of the session tuple.
type Snapshot struct {
	Busy    bool
	Chunks  []string
	Cursor  int
	Exiting bool
}

// Snapshot copies the tuple under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Busy:    s.busy,
		Chunks:  append([]string(nil), s.chunks...),
		Cursor:  s.cursor,
		Exiting: s.exiting,
	}
}

// RequestExit sets the exiting flag and releases Done. Safe to call twice.
func (s *State) RequestExit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exiting {
		return
	}
	s.exiting = true
	close(s.done)
}

// Exiting reports whether exit was requested.
func (s *State) Exiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exiting
}

// Done is closed once exit is requested.
func (s *State) Done() <-chan struct{} {
	return s.done
}

package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// Patch is the one-shot transition handed from the session goroutine to
// the frame loop. Exactly one of Outbound or Err is set.
type Patch struct {
	SessionID uuid.UUID
	Outbound  *Outbound
	Err       error
}

func (p Patch) Ready() bool {
	return p.Err == nil && p.Outbound != nil
}

// patchSlot holds at most one patch over its lifetime.
type patchSlot struct {
	mu      sync.Mutex
	pending *Patch
	offered bool
}

func (s *patchSlot) offer(p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offered {
		return false
	}
	s.offered = true
	s.pending = &p
	return true
}

func (s *patchSlot) take() (Patch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Patch{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

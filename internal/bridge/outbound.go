package bridge

import (
	"sync/atomic"
	"time"

	"github.com/danmuck/willowblossom/internal/queue"
	"github.com/google/uuid"
)

// Outbound is the capability to enqueue messages on a live session. The
// frame loop writes through it, the session writer drains it. Once the
// session ends the handle is inert and every Send returns
// ErrSessionClosed.
type Outbound struct {
	sessionID uuid.UUID
	q         *queue.Queue[Message]
	seq       atomic.Uint64
}

func newOutbound(sessionID uuid.UUID, q *queue.Queue[Message]) *Outbound {
	return &Outbound{sessionID: sessionID, q: q}
}

// Send copies payload onto the outbound queue without blocking.
func (o *Outbound) Send(kind Kind, payload []byte) error {
	if o == nil {
		return ErrNotReady
	}
	msg := Message{
		Seq:     o.seq.Add(1),
		Kind:    kind,
		Payload: append([]byte(nil), payload...),
		At:      time.Now(),
	}
	if err := o.q.Enqueue(msg); err != nil {
		return ErrSessionClosed
	}
	return nil
}

func (o *Outbound) SessionID() uuid.UUID {
	return o.sessionID
}

// Live reports whether the owning session still drains the queue.
func (o *Outbound) Live() bool {
	return o != nil && !o.q.Closed()
}

// Pending is the number of messages not yet taken by the writer.
func (o *Outbound) Pending() int {
	return o.q.Len()
}

package bridge

import (
	"time"

	"github.com/gorilla/websocket"
)

// Kind is the data-frame kind of a message.
type Kind int

const (
	KindText   Kind = websocket.TextMessage
	KindBinary Kind = websocket.BinaryMessage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one opaque unit crossing the bridge. Seq is the arrival
// order on the wire for inbound messages and the enqueue order for
// outbound ones, both starting at 1 per session.
type Message struct {
	Seq     uint64
	Kind    Kind
	Payload []byte
	At      time.Time
}

func (m Message) Text() string {
	return string(m.Payload)
}

// Ingestor receives inbound messages on the frame-loop goroutine, once
// per message, in arrival order.
type Ingestor interface {
	OnInbound(msg Message)
}

// IngestFunc adapts a function to Ingestor.
type IngestFunc func(msg Message)

func (f IngestFunc) OnInbound(msg Message) {
	f(msg)
}

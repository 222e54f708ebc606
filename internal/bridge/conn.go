package bridge

import "context"

// Conn is a live, already-handshaken message connection. One goroutine may
// read while another writes; Close may be called from any goroutine and
// must unblock both.
type Conn interface {
	ReadMessage() (kind int, payload []byte, err error)
	WriteMessage(kind int, payload []byte) error
	Close() error
}

// Dialer establishes a Conn, including any application handshake. Dial
// runs on a background goroutine and must honor ctx.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

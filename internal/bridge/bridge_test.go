package bridge

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	kind    int
	payload []byte
}

// fakeConn is an in-memory Conn. Frames pushed with deliver are read by the
// session; closing the peer side yields a normal close error.
type fakeConn struct {
	reads  chan frame
	writes chan frame

	closed    chan struct{}
	closeOnce sync.Once
	peerOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan frame, 256),
		writes: make(chan frame, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) deliver(kind int, payload string) {
	c.reads <- frame{kind: kind, payload: []byte(payload)}
}

func (c *fakeConn) closeFromPeer() {
	c.peerOnce.Do(func() { close(c.reads) })
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.reads:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return f.kind, f.payload, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(kind int, payload []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.writes <- frame{kind: kind, payload: append([]byte(nil), payload...)}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// scriptedDialer hands out conns in order and counts dials. When gate is
// set, each dial waits for it (or ctx) first.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	gate  chan struct{}
	dials atomic.Int32
}

func (d *scriptedDialer) Dial(ctx context.Context) (Conn, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return newFakeConn(), nil
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

// hungDialer blocks until the handshake context ends.
func hungDialer() Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) OnInbound(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Text())
	}
	return out
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor did not finish")
	}
}

func waitPatch(t *testing.T, s *Supervisor) Patch {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := s.PollReadyPatch(); ok {
			return p
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no patch offered")
	return Patch{}
}

// tickUntil ticks with a short pause until cond holds.
func tickUntil(t *testing.T, a *Adapter, cond func(TickReport) bool) TickReport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rep := a.Tick()
		if cond(rep) {
			return rep
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached, state=%s err=%v", a.State(), a.Err())
	return TickReport{}
}

func stateIs(s State) func(TickReport) bool {
	return func(rep TickReport) bool { return rep.State == s }
}

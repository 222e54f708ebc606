package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/willowblossom/internal/observability"
	"github.com/danmuck/willowblossom/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// task owns one live connection for its whole lifetime.
type task struct {
	id       uuid.UUID
	conn     Conn
	outbound *queue.Queue[Message]
	inbound  *queue.Queue[Message]

	closeOnce sync.Once
}

func newTask(id uuid.UUID, conn Conn, outbound, inbound *queue.Queue[Message]) *task {
	return &task{
		id:       id,
		conn:     conn,
		outbound: outbound,
		inbound:  inbound,
	}
}

// run blocks until either duty ends, then tears the connection down and
// retires the outbound queue. The returned error is the first terminal
// cause.
func (t *task) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.writeLoop(gctx)
	})
	g.Go(func() error {
		return t.readLoop()
	})
	stop := context.AfterFunc(gctx, t.closeConn)

	err := g.Wait()
	stop()
	t.closeConn()

	t.outbound.Close()
	dropped := t.outbound.Len()
	observability.RecordOutboundDropped(dropped)
	if dropped > 0 {
		log.Warn().Str("session", t.id.String()).Int("dropped", dropped).Msg("bridge.task.run outbound discarded")
	}
	if ctx.Err() != nil {
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrLocalClose, err)
	}
	return err
}

func (t *task) writeLoop(ctx context.Context) error {
	for {
		msg, err := t.outbound.Dequeue(ctx)
		if err != nil {
			return err
		}
		if err := t.conn.WriteMessage(int(msg.Kind), msg.Payload); err != nil {
			return fmt.Errorf("%w: write seq=%d: %w", ErrSessionIO, msg.Seq, err)
		}
		observability.RecordMessages("outbound", 1)
	}
}

func (t *task) readLoop() error {
	var seq uint64
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			return classifyReadErr(err)
		}
		switch Kind(kind) {
		case KindText, KindBinary:
		default:
			return fmt.Errorf("%w: unexpected frame kind=%d", ErrSessionIO, kind)
		}
		seq++
		msg := Message{
			Seq:     seq,
			Kind:    Kind(kind),
			Payload: payload,
			At:      time.Now(),
		}
		if err := t.inbound.Enqueue(msg); err != nil {
			return fmt.Errorf("%w: inbound: %w", ErrSessionIO, err)
		}
		observability.RecordMessages("inbound", 1)
	}
}

func (t *task) closeConn() {
	t.closeOnce.Do(func() {
		_ = t.conn.Close()
	})
}

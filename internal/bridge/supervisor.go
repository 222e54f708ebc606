package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/willowblossom/internal/observability"
	"github.com/danmuck/willowblossom/internal/protocol/session"
	"github.com/danmuck/willowblossom/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Supervisor owns at most one session task over its lifetime.
//
// EnsureStarted and PollReadyPatch are safe to call from any goroutine;
// the frame loop is expected to be the only caller in practice.
type Supervisor struct {
	dialer Dialer
	cfg    session.Config

	started atomic.Bool
	spawns  atomic.Uint64
	phase   atomic.Int32

	slot    patchSlot
	inbound *queue.Queue[Message]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	err       error
	sessionID uuid.UUID
}

func NewSupervisor(dialer Dialer, cfg session.Config) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		dialer:  dialer,
		cfg:     cfg.WithDefaults(),
		inbound: queue.New[Message](),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// EnsureStarted spawns the session goroutine on the first call and is a
// no-op afterwards. It reports whether this call did the spawn.
func (s *Supervisor) EnsureStarted() bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	s.spawns.Add(1)
	s.phase.Store(int32(StateConnecting))
	go s.run()
	return true
}

// PollReadyPatch returns the pending patch once. Later calls return false
// even if the first result was never applied.
func (s *Supervisor) PollReadyPatch() (Patch, bool) {
	return s.slot.take()
}

// Inbound is the consumer side of the inbound queue. It is closed once the
// session (or the failed handshake) is over.
func (s *Supervisor) Inbound() *queue.Queue[Message] {
	return s.inbound
}

// Phase is the supervisor's own view of the session, for observation only.
func (s *Supervisor) Phase() State {
	return State(s.phase.Load())
}

func (s *Supervisor) Spawns() uint64 {
	return s.spawns.Load()
}

func (s *Supervisor) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Done is closed when the session goroutine has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Finished reports, without blocking, whether the session goroutine exited.
// A supervisor that was never started is not finished.
func (s *Supervisor) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err is the terminal cause once Finished reports true.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close aborts a pending handshake or tears down the live connection. It
// does not wait; completion is observed through Done or the inbound queue.
func (s *Supervisor) Close() {
	s.cancel()
	if s.started.CompareAndSwap(false, true) {
		s.phase.Store(int32(StateClosed))
		s.finish(ErrLocalClose)
		s.inbound.Close()
		close(s.done)
	}
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer s.inbound.Close()

	dialCtx, cancel := context.WithTimeout(s.ctx, s.cfg.HandshakeTimeout)
	conn, err := s.dialer.Dial(dialCtx)
	cancel()
	if err == nil && s.ctx.Err() != nil {
		_ = conn.Close()
		err = ErrLocalClose
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailure, err)
		s.phase.Store(int32(StateClosed))
		s.finish(err)
		s.slot.offer(Patch{Err: err})
		observability.RecordSessionStart("handshake_failed")
		log.Warn().Err(err).Msg("bridge.Supervisor.run handshake failed")
		return
	}

	id := uuid.New()
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()

	outbound := queue.New[Message]()
	s.phase.Store(int32(StateConnected))
	s.slot.offer(Patch{SessionID: id, Outbound: newOutbound(id, outbound)})
	observability.RecordSessionStart("connected")
	log.Info().Str("session", id.String()).Msg("bridge.Supervisor.run connected")

	err = newTask(id, conn, outbound, s.inbound).run(s.ctx)
	s.phase.Store(int32(StateClosed))
	s.finish(err)
	observability.RecordSessionEnd(endReason(err))
	log.Info().Str("session", id.String()).Str("reason", endReason(err)).Err(err).Msg("bridge.Supervisor.run session ended")
}

func (s *Supervisor) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

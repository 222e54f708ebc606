package bridge

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/willowblossom/internal/observability"
	"github.com/danmuck/willowblossom/internal/protocol/session"
	"github.com/danmuck/willowblossom/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxInboundPerTick caps how many inbound messages one tick
// delivers. The remainder stays queued for the next tick, which keeps tick
// latency bounded under bursts.
const DefaultMaxInboundPerTick = 64

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// AdapterConfig configures the frame-loop side of the bridge.
type AdapterConfig struct {
	Session session.Config
	// MaxInboundPerTick of zero or less drains the inbound queue fully.
	MaxInboundPerTick int
	// Reconnect starts a fresh session after a closed one, waiting the
	// session backoff between attempts.
	Reconnect bool
}

func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Session:           session.DefaultConfig(),
		MaxInboundPerTick: DefaultMaxInboundPerTick,
	}
}

// TickReport is what one Tick observed.
type TickReport struct {
	Tick      uint64
	State     State
	Installed bool
	Delivered int
	Closed    bool
	Backlog   int
}

// Status is a point-in-time copy of the adapter state, safe to read from
// any goroutine.
type Status struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	Ready     bool      `json:"ready"`
	Ticks     uint64    `json:"ticks"`
	Delivered uint64    `json:"delivered"`
	Sent      uint64    `json:"sent"`
	Sessions  uint64    `json:"sessions"`
	LastError string    `json:"last_error,omitempty"`
	RetryAt   time.Time `json:"retry_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Adapter is the frame-loop owner of the bridge. All methods except
// Snapshot must be called from the frame-loop goroutine.
type Adapter struct {
	dialer Dialer
	ingest Ingestor
	cfg    AdapterConfig
	now    func() time.Time
	rng    *rand.Rand

	sup       *Supervisor
	state     State
	outbound  *Outbound
	sessionID uuid.UUID
	lastErr   error
	stopped   bool

	attempt int
	retryAt time.Time

	ticks     uint64
	delivered uint64
	sent      uint64
	sessions  uint64

	status atomic.Pointer[Status]
}

func NewAdapter(dialer Dialer, ingest Ingestor, cfg AdapterConfig) (*Adapter, error) {
	if dialer == nil {
		return nil, ErrDialerRequired
	}
	if ingest == nil {
		return nil, ErrIngestorRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	a := &Adapter{
		dialer: dialer,
		ingest: ingest,
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  StateDisconnected,
	}
	a.publish()
	return a, nil
}

// Tick runs one non-blocking bridge step: start a session if none exists,
// apply a pending ready patch, then deliver queued inbound messages.
func (a *Adapter) Tick() TickReport {
	start := time.Now()
	a.ticks++
	prev := a.state
	rep := TickReport{Tick: a.ticks}

	a.maybeReconnect()
	if a.state == StateDisconnected && !a.stopped {
		a.startSession()
	}
	if a.sup != nil && a.state != StateClosed {
		if p, ok := a.sup.PollReadyPatch(); ok {
			rep.Installed = a.apply(p)
		}
	}
	if a.sup != nil {
		rep.Delivered, rep.Backlog = a.drain()
	}

	rep.State = a.state
	rep.Closed = prev != StateClosed && a.state == StateClosed
	if a.state != prev {
		observability.SetSessionState(int(a.state))
	}
	a.publish()
	observability.ObserveTick(time.Since(start))
	return rep
}

// Send enqueues payload on the installed outbound handle. It never blocks.
func (a *Adapter) Send(kind Kind, payload []byte) error {
	switch a.state {
	case StateConnected:
	case StateClosed:
		observability.RecordSendRejected("session_closed")
		return ErrSessionClosed
	default:
		observability.RecordSendRejected("not_ready")
		return ErrNotReady
	}
	if err := a.outbound.Send(kind, payload); err != nil {
		observability.RecordSendRejected("session_closed")
		return err
	}
	a.sent++
	return nil
}

func (a *Adapter) SendText(text string) error {
	return a.Send(KindText, []byte(text))
}

// Ready reports whether sends may be enqueued right now.
func (a *Adapter) Ready() bool {
	return a.state == StateConnected && a.outbound.Live()
}

func (a *Adapter) State() State {
	return a.state
}

// Err is the cause of the last Closed transition.
func (a *Adapter) Err() error {
	return a.lastErr
}

// Done is closed once the current session goroutine has exited. With no
// session it is already closed.
func (a *Adapter) Done() <-chan struct{} {
	if a.sup == nil {
		return closedDone
	}
	return a.sup.Done()
}

// Restart discards a closed session so the next Tick starts a new one.
func (a *Adapter) Restart() error {
	if a.state != StateClosed {
		return ErrSessionActive
	}
	if a.sup != nil && !a.sup.Finished() {
		return ErrSessionActive
	}
	a.stopped = false
	a.reset()
	observability.SetSessionState(int(a.state))
	a.publish()
	return nil
}

// Close force-closes the current session and disables reconnects until
// Restart. With a live supervisor the Closed state is observed by a later
// Tick; without one the adapter is Closed immediately.
func (a *Adapter) Close() {
	a.stopped = true
	if a.sup != nil {
		a.sup.Close()
		return
	}
	prev := a.state
	a.markClosed(ErrLocalClose)
	if a.state != prev {
		observability.SetSessionState(int(a.state))
	}
	a.publish()
}

// Snapshot may be called from any goroutine.
func (a *Adapter) Snapshot() Status {
	if st := a.status.Load(); st != nil {
		return *st
	}
	return Status{State: StateDisconnected.String()}
}

func (a *Adapter) startSession() {
	a.sup = NewSupervisor(a.dialer, a.cfg.Session)
	a.sup.EnsureStarted()
	a.sessions++
	a.state = StateConnecting
	log.Debug().Uint64("sessions", a.sessions).Msg("bridge.Adapter.startSession")
}

func (a *Adapter) apply(p Patch) bool {
	if !p.Ready() {
		a.markClosed(p.Err)
		return false
	}
	a.outbound = p.Outbound
	a.sessionID = p.SessionID
	a.state = StateConnected
	a.attempt = 0
	a.lastErr = nil
	log.Info().Str("session", p.SessionID.String()).Msg("bridge.Adapter.apply installed outbound")
	return true
}

func (a *Adapter) drain() (int, int) {
	inbound := a.sup.Inbound()
	limit := a.cfg.MaxInboundPerTick
	n := 0
	for limit <= 0 || n < limit {
		msg, err := inbound.TryDequeue()
		if errors.Is(err, queue.ErrEmpty) {
			break
		}
		if errors.Is(err, queue.ErrClosed) {
			a.markClosed(a.sup.Err())
			break
		}
		a.ingest.OnInbound(msg)
		n++
	}
	a.delivered += uint64(n)
	return n, inbound.Len()
}

func (a *Adapter) markClosed(cause error) {
	if a.state == StateClosed {
		return
	}
	a.state = StateClosed
	a.outbound = nil
	a.lastErr = cause
	if a.cfg.Reconnect && !a.stopped {
		a.attempt++
		delay := session.NextBackoffDelay(a.cfg.Session.Backoff, a.attempt, a.rng)
		a.retryAt = a.now().Add(delay)
	}
	log.Info().Err(cause).Int("attempt", a.attempt).Msg("bridge.Adapter.markClosed")
}

func (a *Adapter) maybeReconnect() {
	if !a.cfg.Reconnect || a.stopped || a.state != StateClosed || a.retryAt.IsZero() {
		return
	}
	if a.now().Before(a.retryAt) {
		return
	}
	if a.sup != nil && !a.sup.Finished() {
		return
	}
	log.Info().Int("attempt", a.attempt).Msg("bridge.Adapter.maybeReconnect")
	a.reset()
}

func (a *Adapter) reset() {
	a.sup = nil
	a.outbound = nil
	a.sessionID = uuid.Nil
	a.retryAt = time.Time{}
	a.state = StateDisconnected
}

func (a *Adapter) publish() {
	st := &Status{
		State:     a.state.String(),
		Ready:     a.Ready(),
		Ticks:     a.ticks,
		Delivered: a.delivered,
		Sent:      a.sent,
		Sessions:  a.sessions,
		RetryAt:   a.retryAt,
		UpdatedAt: a.now(),
	}
	if a.sessionID != uuid.Nil {
		st.SessionID = a.sessionID.String()
	}
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	a.status.Store(st)
}

// Package bridge connects a background websocket session to a
// single-threaded, fixed-cadence frame loop.
//
// Ownership boundary:
//   - Supervisor: serializes session creation, runs the handshake off the
//     frame loop and publishes a one-shot ready patch.
//   - session task: owns the live connection; a writer duty drains the
//     outbound queue and a reader duty fills the inbound queue.
//   - Adapter: called once per tick; polls the patch slot and the inbound
//     queue without ever blocking, and owns every piece of consumer-visible
//     state (connection state, outbound handle).
//
// Concurrency domains:
//   - frame loop: Adapter.Tick, Adapter.Send and everything they call must
//     return immediately.
//   - background: Dialer.Dial and the two session duties may suspend on I/O.
//
// The only crossings between the two are the inbound and outbound queues
// and the patch slot. Observation-only snapshots (Adapter.Snapshot,
// Supervisor.Phase, metrics) use atomics.
//
// Lifecycle per Supervisor:
//   - disconnected -> connecting -> connected -> closed
//   - connecting -> closed when the handshake fails
//   - closed is terminal; a new session needs a new Supervisor, which the
//     Adapter creates on Restart or through its reconnect policy
//
// Send policy: before the patch is applied sends fail with ErrNotReady;
// once the session is closed they fail with ErrSessionClosed. Nothing is
// dropped silently except messages still queued when a session tears
// down, which are counted in metrics.
package bridge

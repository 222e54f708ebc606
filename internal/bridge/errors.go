package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var (
	ErrDialerRequired   = errors.New("bridge: dialer required")
	ErrIngestorRequired = errors.New("bridge: ingestor required")

	ErrHandshakeFailure = errors.New("bridge: handshake failed")
	ErrSessionIO        = errors.New("bridge: session i/o failed")
	ErrPeerClosed       = errors.New("bridge: peer closed session")
	ErrLocalClose       = errors.New("bridge: session closed locally")

	ErrNotReady      = errors.New("bridge: outbound handle not installed")
	ErrSessionClosed = errors.New("bridge: session closed")
	ErrSessionActive = errors.New("bridge: session still active")
)

// endReason maps a terminal session error to a metrics label.
func endReason(err error) string {
	switch {
	case err == nil:
		return "ended"
	case errors.Is(err, ErrHandshakeFailure):
		return "handshake_failed"
	case errors.Is(err, ErrPeerClosed):
		return "peer_closed"
	case errors.Is(err, ErrLocalClose), errors.Is(err, context.Canceled):
		return "closed_locally"
	default:
		return "io_error"
	}
}

func classifyReadErr(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}
	return fmt.Errorf("%w: read: %w", ErrSessionIO, err)
}

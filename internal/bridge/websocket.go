package bridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/willowblossom/internal/protocol/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebsocketDialer dials a session endpoint and consumes its hello frame
// when the endpoint expects one.
type WebsocketDialer struct {
	endpoint session.Endpoint
	cfg      session.Config
}

func NewWebsocketDialer(endpoint session.Endpoint, cfg session.Config) (*WebsocketDialer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(endpoint); err != nil {
		return nil, err
	}
	return &WebsocketDialer{endpoint: endpoint, cfg: cfg}, nil
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	target, err := d.endpoint.DialURL()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := d.cfg.ClientTLSConfig(d.endpoint)
	if err != nil {
		return nil, err
	}

	netDialer := &net.Dialer{Timeout: d.cfg.ConnectTimeout}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   netDialer.DialContext,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}
	ws, resp, err := dialer.DialContext(ctx, target, d.endpoint.Header.Clone())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status=%d: %w", d.endpoint.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.endpoint.URL, err)
	}
	ws.SetReadLimit(d.cfg.MaxMessageBytes)

	if d.endpoint.ExpectsHello() {
		hello, err := d.awaitHello(ctx, ws)
		if err != nil {
			_ = ws.Close()
			return nil, err
		}
		log.Debug().Str("remote_session", hello.Session).Msg("bridge.WebsocketDialer.Dial hello accepted")
	}

	return &wsConn{
		ws:           ws,
		readTimeout:  d.cfg.ReadTimeout,
		writeTimeout: d.cfg.WriteTimeout,
	}, nil
}

func (d *WebsocketDialer) awaitHello(ctx context.Context, ws *websocket.Conn) (session.Hello, error) {
	deadline := time.Now().Add(d.cfg.HandshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := ws.SetReadDeadline(deadline); err != nil {
		return session.Hello{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})

	_, payload, err := ws.ReadMessage()
	if !stop() {
		return session.Hello{}, fmt.Errorf("read hello: %w", ctx.Err())
	}
	if err != nil {
		return session.Hello{}, fmt.Errorf("read hello: %w", err)
	}
	hello, err := session.DecodeHello(payload)
	if err != nil {
		return session.Hello{}, err
	}
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return session.Hello{}, err
	}
	return hello, nil
}

// wsConn applies per-call deadlines and makes Close idempotent.
type wsConn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	if c.readTimeout > 0 {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, nil, err
		}
	}
	return c.ws.ReadMessage()
}

func (c *wsConn) WriteMessage(kind int, payload []byte) error {
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(kind, payload)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

package echo

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/willowblossom/internal/mirai"
	"github.com/danmuck/willowblossom/internal/protocol/session"
	"github.com/danmuck/willowblossom/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	srv := NewServer(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func TestEchoWithoutHello(t *testing.T) {
	testlog.Start(t)
	srv, base := startServer(t, Config{})
	ws := dial(t, base+"/message")

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	kind, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage || string(payload) != "\x01\x02\x03" {
		t.Fatalf("unexpected echo: kind=%d payload=%v", kind, payload)
	}
	if srv.Sessions() != 1 || srv.Frames() != 1 {
		t.Fatalf("unexpected counters: sessions=%d frames=%d", srv.Sessions(), srv.Frames())
	}
}

func TestHelloAcceptedThenEcho(t *testing.T) {
	testlog.Start(t)
	_, base := startServer(t, Config{VerifyKey: "secret"})
	ws := dial(t, base+"/message?verifyKey=secret&qq=1")

	_, first, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	hello, err := session.DecodeHello(first)
	if err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.Session == "" {
		t.Fatalf("hello missing session")
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload, err := ws.ReadMessage()
	if err != nil || string(payload) != "hello" {
		t.Fatalf("unexpected echo %q err=%v", payload, err)
	}
}

func TestHelloRejectsWrongKey(t *testing.T) {
	testlog.Start(t)
	_, base := startServer(t, Config{VerifyKey: "secret"})
	ws := dial(t, base+"/message?verifyKey=nope")

	_, first, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if _, err := session.DecodeHello(first); !errors.Is(err, session.ErrHandshakeRejected) {
		t.Fatalf("expected ErrHandshakeRejected, got %v", err)
	}
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestMiraiModeRepliesAndPushes(t *testing.T) {
	testlog.Start(t)
	_, base := startServer(t, Config{Mirai: true, BotName: "bot"})
	ws := dial(t, base+"/message")

	var cmd mirai.Commander
	payload, syncID, err := cmd.SendText(mirai.Target{Kind: mirai.TargetFriend, ID: 42}, "ping")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	reply, err := mirai.DecodeReply(raw)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.SyncID != syncID || reply.Code != 0 || reply.MessageID != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	_, raw, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	ev, err := mirai.DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Line() != "bot: ping" || ev.Sender.ID != 42 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if id, ok := ev.Chain.SourceID(); !ok || id != reply.MessageID {
		t.Fatalf("event source id %d does not match reply %d", id, reply.MessageID)
	}

	// Frames that are not commands are still echoed verbatim.
	if err := ws.WriteMessage(websocket.TextMessage, []byte("plain")); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	if _, raw, err = ws.ReadMessage(); err != nil || string(raw) != "plain" {
		t.Fatalf("unexpected plain echo %q err=%v", raw, err)
	}
}

func TestHandshakeDelay(t *testing.T) {
	testlog.Start(t)
	_, base := startServer(t, Config{HandshakeDelay: 50 * time.Millisecond})

	start := time.Now()
	dial(t, base+"/message")
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("upgrade completed before delay: %s", elapsed)
	}
}

// Package echo is a websocket peer for local runs and tests. It speaks the
// Mirai hello handshake and echoes every frame back to the sender; in Mirai
// mode send commands are answered with a reply and pushed back as chat
// events.
package echo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/willowblossom/internal/auth"
	"github.com/danmuck/willowblossom/internal/mirai"
	"github.com/danmuck/willowblossom/internal/observability"
	"github.com/danmuck/willowblossom/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CodeAuthFailed is the hello code for a wrong verify key.
const CodeAuthFailed = 1

type Config struct {
	Addr string
	Path string
	// VerifyKey enables the hello frame and checks the verifyKey query.
	VerifyKey      string
	HandshakeDelay time.Duration
	Mirai          bool
	BotName        string

	TLSCertFile  string
	TLSKeyFile   string
	ClientCAFile string
}

func DefaultConfig() Config {
	return Config{
		Addr:    ":5005",
		Path:    "/message",
		BotName: "echo",
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if strings.TrimSpace(c.Path) == "" {
		c.Path = def.Path
	}
	if strings.TrimSpace(c.BotName) == "" {
		c.BotName = def.BotName
	}
	if c.HandshakeDelay < 0 {
		c.HandshakeDelay = 0
	}
	return c
}

type Server struct {
	cfg      Config
	keys     auth.VerifyKey
	router   *gin.Engine
	upgrader websocket.Upgrader

	sessions  atomic.Uint64
	frames    atomic.Uint64
	messageID atomic.Int64
}

func NewServer(cfg Config) *Server {
	cfg = cfg.WithDefaults()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))

	s := &Server{
		cfg:    cfg,
		keys:   auth.VerifyKey{Key: cfg.VerifyKey},
		router: r,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	r.GET(cfg.Path, s.handleMessage)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": s.sessions.Load(),
			"frames":   s.frames.Load(),
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions counts accepted sessions, including rejected verify keys.
func (s *Server) Sessions() uint64 {
	return s.sessions.Load()
}

// Frames counts frames echoed back.
func (s *Server) Frames() uint64 {
	return s.frames.Load()
}

// Serve listens on cfg.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	tlsEnabled := s.cfg.TLSCertFile != "" || s.cfg.TLSKeyFile != ""
	if tlsEnabled {
		tlsCfg, err := s.tlsConfig()
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Str("path", s.cfg.Path).Bool("tls", tlsEnabled).Msg("echo.Server.Serve listening")
		if tlsEnabled {
			errCh <- srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.TLSCertFile == "" || s.cfg.TLSKeyFile == "" {
		return nil, fmt.Errorf("echo: tls requires both cert and key files")
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.cfg.ClientCAFile != "" {
		caPEM, err := os.ReadFile(s.cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("echo: parse client ca bundle: %s", s.cfg.ClientCAFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func (s *Server) handleMessage(c *gin.Context) {
	if s.cfg.HandshakeDelay > 0 {
		timer := time.NewTimer(s.cfg.HandshakeDelay)
		select {
		case <-timer.C:
		case <-c.Request.Context().Done():
			timer.Stop()
			return
		}
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("echo.Server.handleMessage upgrade failed")
		return
	}
	defer ws.Close()
	id := s.sessions.Add(1)

	if s.keys.Enabled() {
		hello := session.Hello{Session: uuid.NewString()}
		if err := s.keys.Validate(c.Query("verifyKey")); err != nil {
			hello = session.Hello{Code: CodeAuthFailed, Message: err.Error()}
		}
		payload, err := session.EncodeHello(hello)
		if err != nil {
			log.Error().Err(err).Msg("echo.Server.handleMessage encode hello")
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
		if hello.Code != 0 {
			log.Warn().Uint64("session", id).Msg("echo.Server.handleMessage rejected verify key")
			closeWith(ws, websocket.ClosePolicyViolation, hello.Message)
			return
		}
	}
	log.Debug().Uint64("session", id).Msg("echo.Server.handleMessage session open")

	for {
		kind, payload, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Uint64("session", id).Err(err).Msg("echo.Server.handleMessage session closed")
			return
		}
		if err := s.answer(ws, kind, payload); err != nil {
			log.Warn().Uint64("session", id).Err(err).Msg("echo.Server.handleMessage write failed")
			return
		}
	}
}

func (s *Server) answer(ws *websocket.Conn, kind int, payload []byte) error {
	if s.cfg.Mirai && kind == websocket.TextMessage {
		if send, err := mirai.DecodeSend(payload); err == nil {
			return s.answerSend(ws, send)
		}
	}
	s.frames.Add(1)
	return ws.WriteMessage(kind, payload)
}

// answerSend acknowledges a send command and pushes the same chain back as
// a message from the target.
func (s *Server) answerSend(ws *websocket.Conn, send mirai.Send) error {
	msgID := s.messageID.Add(1)
	reply, err := mirai.EncodeReply(mirai.Reply{SyncID: send.SyncID, Message: "success", MessageID: msgID})
	if err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
		return err
	}

	ev := mirai.Event{
		Type:   mirai.TypeFriendMessage,
		Sender: mirai.Sender{ID: send.Target.ID, Nickname: s.cfg.BotName},
	}
	if send.Target.Kind == mirai.TargetGroup {
		ev.Type = mirai.TypeGroupMessage
		ev.Sender = mirai.Sender{ID: send.Target.ID, MemberName: s.cfg.BotName, Group: &mirai.Group{ID: send.Target.ID}}
	}
	ev.Chain = append(mirai.Chain{{Type: mirai.ElementSource, ID: msgID, Time: time.Now().Unix()}}, send.Chain...)
	pushed, err := mirai.EncodeEvent(ev)
	if err != nil {
		return err
	}
	s.frames.Add(1)
	return ws.WriteMessage(websocket.TextMessage, pushed)
}

func closeWith(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

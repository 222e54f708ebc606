package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/willowblossom/internal/bridge"
	"github.com/danmuck/willowblossom/internal/history"
	"github.com/danmuck/willowblossom/internal/mirai"
	"github.com/danmuck/willowblossom/internal/statusapi"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errEmptyInput = errors.New("empty input")

// app owns the frame-loop side: the adapter, the history it feeds and the
// lines not yet shown.
type app struct {
	cfg       appConfig
	adapter   *bridge.Adapter
	store     *history.Store
	commander mirai.Commander
	pending   []string
}

func newApp(cfg appConfig, dialer bridge.Dialer) (*app, error) {
	a := &app{
		cfg:   cfg,
		store: history.New(cfg.HistoryLimit),
	}
	if cfg.HistoryPath != "" {
		if err := a.store.Load(cfg.HistoryPath); err != nil {
			return nil, err
		}
	}
	adapter, err := bridge.NewAdapter(dialer, bridge.IngestFunc(a.ingest), cfg.Adapter)
	if err != nil {
		return nil, err
	}
	a.adapter = adapter
	return a, nil
}

func (a *app) ingest(msg bridge.Message) {
	a.store.OnInbound(msg)
	a.pending = append(a.pending, displayLine(msg))
}

// takePending returns and clears the lines delivered since the last call.
func (a *app) takePending() []string {
	out := a.pending
	a.pending = nil
	return out
}

func displayLine(msg bridge.Message) string {
	if msg.Kind != bridge.KindText {
		return fmt.Sprintf("<binary %d bytes>", len(msg.Payload))
	}
	if ev, err := mirai.DecodeEvent(msg.Payload); err == nil {
		return ev.Line()
	}
	if reply, err := mirai.DecodeReply(msg.Payload); err == nil && reply.Code == 0 {
		return ""
	}
	return msg.Text()
}

// submit sends one line typed by the user. With a configured target the
// line becomes a Mirai send command, otherwise it goes out verbatim.
func (a *app) submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errEmptyInput
	}
	if a.cfg.Target.ID == 0 {
		return a.adapter.SendText(text)
	}
	payload, _, err := a.commander.SendText(a.cfg.Target, text)
	if err != nil {
		return err
	}
	return a.adapter.Send(bridge.KindText, payload)
}

// shutdown closes the session, waits briefly for the writer to finish and
// persists the history.
func (a *app) shutdown() {
	a.adapter.Close()
	select {
	case <-a.adapter.Done():
	case <-time.After(2 * time.Second):
		log.Warn().Msg("willowctl.app.shutdown session did not finish")
	}
	a.adapter.Tick()
	if a.cfg.HistoryPath == "" {
		return
	}
	if err := a.store.Save(a.cfg.HistoryPath); err != nil {
		log.Error().Err(err).Msg("willowctl.app.shutdown history save failed")
	}
}

func run(cfg appConfig) error {
	dialer, err := bridge.NewWebsocketDialer(cfg.Endpoint, cfg.Adapter.Session)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dialer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(gctx)
	defer cancelLoop()

	if cfg.StatusAddr != "" {
		status := statusapi.New(statusapi.Config{Addr: cfg.StatusAddr, CORSOrigins: cfg.CORSOrigins}, a.adapter, a.store)
		g.Go(func() error {
			return status.Serve(loopCtx)
		})
	}
	g.Go(func() error {
		defer cancelLoop()
		defer a.shutdown()
		if cfg.Headless {
			return runHeadless(loopCtx, a, os.Stdin, os.Stdout)
		}
		return runTUI(loopCtx, a)
	})

	log.Info().Str("url", cfg.Endpoint.URL).Bool("headless", cfg.Headless).Msg("willowctl.run started")
	return g.Wait()
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

// runHeadless drives the adapter from a plain ticker. Lines read from in are
// held until the session is ready and sent at the start of a tick; delivered
// messages are printed to out.
func runHeadless(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

	input:
		for a.adapter.Ready() {
			select {
			case line := <-lines:
				if err := a.submit(line); err != nil && err != errEmptyInput {
					log.Warn().Err(err).Msg("willowctl.runHeadless send rejected")
				}
			default:
				break input
			}
		}

		rep := a.adapter.Tick()
		for _, line := range a.takePending() {
			if line != "" {
				fmt.Fprintln(out, line)
			}
		}
		if rep.Installed {
			log.Info().Str("session", a.adapter.Snapshot().SessionID).Msg("willowctl.runHeadless connected")
		}
		if rep.Closed {
			log.Warn().Err(a.adapter.Err()).Msg("willowctl.runHeadless session closed")
		}
	}
}

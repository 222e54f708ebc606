package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/willowblossom/internal/config"
	"github.com/danmuck/willowblossom/internal/echo"
	"github.com/danmuck/willowblossom/internal/observability"
)

func main() {
	var (
		configPath string
		initConfig bool
		addr       string
		verifyKey  string
		delay      time.Duration
		miraiMode  bool
	)
	flag.StringVar(&configPath, "config", "", "optional echoctl config (toml)")
	flag.BoolVar(&initConfig, "init", false, "write a starter config to -config and exit")
	flag.StringVar(&addr, "addr", "", "listen address, overrides the config")
	flag.StringVar(&verifyKey, "verify-key", "", "require this verify key and send a hello frame")
	flag.DurationVar(&delay, "delay", 0, "wait this long before accepting each upgrade")
	flag.BoolVar(&miraiMode, "mirai", false, "answer send commands like a Mirai adapter")
	flag.Parse()

	if initConfig {
		if configPath == "" {
			configPath = "echo.toml"
		}
		if err := config.WriteTemplate(configPath, "echo", false); err != nil {
			fmt.Fprintf(os.Stderr, "echoctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", configPath)
		return
	}

	cfg := echo.DefaultConfig()
	if configPath != "" {
		fileCfg, err := config.LoadEchoConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "echoctl: %v\n", err)
			os.Exit(1)
		}
		cfg = fileCfg.Server()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = addr
		case "verify-key":
			cfg.VerifyKey = verifyKey
		case "delay":
			cfg.HandshakeDelay = delay
		case "mirai":
			cfg.Mirai = miraiMode
		}
	})

	logger := observability.InitLogger("echoctl")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := echo.NewServer(cfg).Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("echoctl.main serve failed")
		os.Exit(1)
	}
}

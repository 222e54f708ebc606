package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/willowblossom/internal/config"
	"github.com/danmuck/willowblossom/internal/logging"
)

func main() {
	var (
		configPath string
		headless   bool
		initConfig bool
	)
	flag.StringVar(&configPath, "config", "willow.toml", "path to the willowctl config")
	flag.BoolVar(&headless, "headless", false, "run the frame loop without the terminal UI")
	flag.BoolVar(&initConfig, "init", false, "write a starter config to -config and exit")
	flag.Parse()

	if initConfig {
		if err := config.WriteTemplate(configPath, "willow", false); err != nil {
			fmt.Fprintf(os.Stderr, "willowctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", configPath)
		return
	}

	cfg, err := loadAppConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "willowctl: %v\n", err)
		os.Exit(1)
	}
	if headless {
		cfg.Headless = true
	}
	if cfg.Headless {
		logging.ConfigureRuntime()
	} else {
		logging.Configure(logging.ProfileTUI)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "willowctl: %v\n", err)
		os.Exit(1)
	}
}

// Package config loads the echo peer configuration and writes starter
// config files for both commands.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/willowblossom/internal/echo"
	"github.com/pelletier/go-toml/v2"
)

type EchoConfig struct {
	Addr             string `toml:"addr"`
	Path             string `toml:"path"`
	VerifyKey        string `toml:"verify_key"`
	HandshakeDelayMS int64  `toml:"handshake_delay_ms"`
	Mirai            bool   `toml:"mirai"`
	BotName          string `toml:"bot_name"`
	TLSCertFile      string `toml:"tls_cert_file"`
	TLSKeyFile       string `toml:"tls_key_file"`
	ClientCAFile     string `toml:"client_ca_file"`
}

func LoadEchoConfig(path string) (EchoConfig, error) {
	var cfg EchoConfig
	if err := loadToml(path, &cfg); err != nil {
		return EchoConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = echo.DefaultConfig().Addr
	}
	if err := ValidateEchoConfig(cfg); err != nil {
		return EchoConfig{}, err
	}
	return cfg, nil
}

// Server converts the file form into the echo server config.
func (c EchoConfig) Server() echo.Config {
	return echo.Config{
		Addr:           strings.TrimSpace(c.Addr),
		Path:           strings.TrimSpace(c.Path),
		VerifyKey:      strings.TrimSpace(c.VerifyKey),
		HandshakeDelay: time.Duration(c.HandshakeDelayMS) * time.Millisecond,
		Mirai:          c.Mirai,
		BotName:        strings.TrimSpace(c.BotName),
		TLSCertFile:    strings.TrimSpace(c.TLSCertFile),
		TLSKeyFile:     strings.TrimSpace(c.TLSKeyFile),
		ClientCAFile:   strings.TrimSpace(c.ClientCAFile),
	}.WithDefaults()
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateEchoConfig(cfg EchoConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("echo config missing addr")
	}
	if path := strings.TrimSpace(cfg.Path); path != "" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("echo config path must start with /: %q", path)
	}
	if cfg.HandshakeDelayMS < 0 {
		return fmt.Errorf("echo config handshake_delay_ms must not be negative")
	}
	hasCert := strings.TrimSpace(cfg.TLSCertFile) != ""
	hasKey := strings.TrimSpace(cfg.TLSKeyFile) != ""
	if hasCert != hasKey {
		return fmt.Errorf("echo config needs both tls_cert_file and tls_key_file")
	}
	if strings.TrimSpace(cfg.ClientCAFile) != "" && !hasCert {
		return fmt.Errorf("echo config client_ca_file requires tls")
	}
	return nil
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/willowblossom/internal/bridge"
	"github.com/danmuck/willowblossom/internal/history"
	"github.com/danmuck/willowblossom/internal/mirai"
	"github.com/danmuck/willowblossom/internal/protocol/session"
)

const defaultTickInterval = 16 * time.Millisecond

type appConfig struct {
	Endpoint     session.Endpoint
	Adapter      bridge.AdapterConfig
	TickInterval time.Duration
	Headless     bool
	StatusAddr   string
	CORSOrigins  []string
	HistoryPath  string
	HistoryLimit int
	Target       mirai.Target
}

func defaultAppConfig() appConfig {
	return appConfig{
		Endpoint:     session.Endpoint{URL: "ws://localhost:5005/message"},
		Adapter:      bridge.DefaultAdapterConfig(),
		TickInterval: defaultTickInterval,
		HistoryLimit: history.DefaultLimit,
	}
}

type fileConfig struct {
	URL               string      `toml:"url"`
	VerifyKey         string      `toml:"verify_key"`
	Account           int64       `toml:"account"`
	TickInterval      string      `toml:"tick_interval"`
	MaxInboundPerTick int         `toml:"max_inbound_per_tick"`
	Reconnect         bool        `toml:"reconnect"`
	Headless          bool        `toml:"headless"`
	StatusAddr        string      `toml:"status_addr"`
	CORSOrigins       []string    `toml:"cors_origins"`
	HistoryPath       string      `toml:"history_path"`
	HistoryLimit      int         `toml:"history_limit"`
	TargetKind        string      `toml:"target_kind"`
	TargetID          int64       `toml:"target_id"`
	Session           sessionFile `toml:"session"`
}

type sessionFile struct {
	ConnectTimeout   string      `toml:"connect_timeout"`
	HandshakeTimeout string      `toml:"handshake_timeout"`
	ReadTimeout      string      `toml:"read_timeout"`
	WriteTimeout     string      `toml:"write_timeout"`
	MaxMessageBytes  int64       `toml:"max_message_bytes"`
	SecurityMode     string      `toml:"security_mode"`
	Backoff          backoffFile `toml:"backoff"`
	TLS              tlsFile     `toml:"tls"`
}

type backoffFile struct {
	Initial    string  `toml:"initial"`
	Multiplier float64 `toml:"multiplier"`
	Max        string  `toml:"max"`
	Jitter     bool    `toml:"jitter"`
}

type tlsFile struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load willow config: %w", err)
	}

	if meta.IsDefined("url") {
		cfg.Endpoint.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("verify_key") {
		cfg.Endpoint.VerifyKey = strings.TrimSpace(raw.VerifyKey)
	}
	if meta.IsDefined("account") {
		cfg.Endpoint.Account = raw.Account
	}
	if meta.IsDefined("tick_interval") {
		d, err := parseDuration("tick_interval", raw.TickInterval)
		if err != nil {
			return appConfig{}, err
		}
		if d <= 0 {
			return appConfig{}, fmt.Errorf("tick_interval must be positive")
		}
		cfg.TickInterval = d
	}
	if meta.IsDefined("max_inbound_per_tick") {
		cfg.Adapter.MaxInboundPerTick = raw.MaxInboundPerTick
	}
	if meta.IsDefined("reconnect") {
		cfg.Adapter.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("headless") {
		cfg.Headless = raw.Headless
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("history_path") {
		cfg.HistoryPath = strings.TrimSpace(raw.HistoryPath)
	}
	if meta.IsDefined("history_limit") {
		cfg.HistoryLimit = raw.HistoryLimit
	}
	if meta.IsDefined("target_kind") {
		switch strings.ToLower(strings.TrimSpace(raw.TargetKind)) {
		case "friend", "":
			cfg.Target.Kind = mirai.TargetFriend
		case "group":
			cfg.Target.Kind = mirai.TargetGroup
		default:
			return appConfig{}, fmt.Errorf("target_kind must be friend or group, got %q", raw.TargetKind)
		}
	}
	if meta.IsDefined("target_id") {
		cfg.Target.ID = raw.TargetID
	}

	if err := applySessionFile(meta, raw.Session, &cfg.Adapter.Session); err != nil {
		return appConfig{}, err
	}
	cfg.Adapter.Session = cfg.Adapter.Session.WithDefaults()
	if err := cfg.Adapter.Session.ValidateClientTransport(cfg.Endpoint); err != nil {
		return appConfig{}, fmt.Errorf("validate willow config: %w", err)
	}
	return cfg, nil
}

func applySessionFile(meta toml.MetaData, raw sessionFile, cfg *session.Config) error {
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := parseDuration("session."+d.key, d.val)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("session", "security_mode") {
		cfg.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}

	if meta.IsDefined("session", "backoff", "initial") {
		v, err := parseDuration("session.backoff.initial", raw.Backoff.Initial)
		if err != nil {
			return err
		}
		cfg.Backoff.InitialDelay = v
	}
	if meta.IsDefined("session", "backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("session", "backoff", "max") {
		v, err := parseDuration("session.backoff.max", raw.Backoff.Max)
		if err != nil {
			return err
		}
		cfg.Backoff.MaxDelay = v
	}
	if meta.IsDefined("session", "backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}

	if meta.IsDefined("session", "tls", "enabled") {
		cfg.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("session", "tls", "mutual") {
		cfg.TLS.Mutual = raw.TLS.Mutual
	}
	if meta.IsDefined("session", "tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if meta.IsDefined("session", "tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}
	if meta.IsDefined("session", "tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("session", "tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("session", "tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

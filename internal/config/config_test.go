package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/willowblossom/internal/testutil/testlog"
)

func TestLoadEchoConfigDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "echo.toml")
	if err := os.WriteFile(path, []byte("verify_key = \"k\"\nhandshake_delay_ms = 50\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadEchoConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := cfg.Server()
	if srv.Addr != ":5005" || srv.Path != "/message" || srv.BotName != "echo" {
		t.Fatalf("defaults not applied: %+v", srv)
	}
	if srv.VerifyKey != "k" || srv.HandshakeDelay != 50*time.Millisecond {
		t.Fatalf("unexpected server config: %+v", srv)
	}
}

func TestValidateEchoConfig(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		cfg  EchoConfig
		want string
	}{
		{name: "path", cfg: EchoConfig{Addr: ":1", Path: "message"}, want: "path must start"},
		{name: "delay", cfg: EchoConfig{Addr: ":1", HandshakeDelayMS: -1}, want: "negative"},
		{name: "tls pair", cfg: EchoConfig{Addr: ":1", TLSCertFile: "c.pem"}, want: "both"},
		{name: "client ca", cfg: EchoConfig{Addr: ":1", ClientCAFile: "ca.pem"}, want: "requires tls"},
	}
	for _, tc := range cases {
		err := ValidateEchoConfig(tc.cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	if err := ValidateEchoConfig(EchoConfig{Addr: ":1", Path: "/m"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestWriteTemplate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.toml")
	if err := WriteTemplate(path, "echo", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "echo", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := LoadEchoConfig(path); err != nil {
		t.Fatalf("echo template does not load: %v", err)
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

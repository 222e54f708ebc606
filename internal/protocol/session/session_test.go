package session

import (
	"errors"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/danmuck/willowblossom/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 125*time.Millisecond {
		t.Fatalf("nil rng jitter should be deterministic, got %v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: -1, SecurityMode: " Production "}.WithDefaults()
	def := DefaultConfig()
	if cfg.HandshakeTimeout != def.HandshakeTimeout || cfg.WriteTimeout != def.WriteTimeout {
		t.Fatalf("timeouts not defaulted: %+v", cfg)
	}
	if cfg.ReadTimeout != 0 {
		t.Fatalf("negative read timeout should disable deadline, got %v", cfg.ReadTimeout)
	}
	if cfg.Backoff.InitialDelay != def.Backoff.InitialDelay {
		t.Fatalf("backoff not defaulted: %+v", cfg.Backoff)
	}
	if cfg.SecurityMode != SecurityModeProduction {
		t.Fatalf("security mode not normalized: %q", cfg.SecurityMode)
	}
}

func TestEndpointDialURL(t *testing.T) {
	testlog.Start(t)
	ep := Endpoint{URL: "ws://localhost:5005/message", VerifyKey: "secret", Account: 123456}
	raw, err := ep.DialURL()
	if err != nil {
		t.Fatalf("dial url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse dial url: %v", err)
	}
	if u.Path != "/message" || u.Host != "localhost:5005" {
		t.Fatalf("unexpected url: %s", raw)
	}
	if u.Query().Get("verifyKey") != "secret" || u.Query().Get("qq") != "123456" {
		t.Fatalf("unexpected query: %s", u.RawQuery)
	}
	if !ep.ExpectsHello() {
		t.Fatalf("verify key implies hello")
	}
	if ep.Secure() {
		t.Fatalf("ws endpoint is not secure")
	}
}

func TestEndpointValidate(t *testing.T) {
	testlog.Start(t)
	if err := (Endpoint{}).Validate(); !errors.Is(err, ErrEndpointURLRequired) {
		t.Fatalf("expected ErrEndpointURLRequired, got %v", err)
	}
	if err := (Endpoint{URL: "http://localhost/message"}).Validate(); !errors.Is(err, ErrInvalidEndpointURL) {
		t.Fatalf("expected ErrInvalidEndpointURL, got %v", err)
	}
	if err := (Endpoint{URL: "ws:///message"}).Validate(); !errors.Is(err, ErrInvalidEndpointURL) {
		t.Fatalf("expected missing host error, got %v", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	testlog.Start(t)
	payload, err := EncodeHello(Hello{Session: "abc"})
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	got, err := DecodeHello(payload)
	if err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if got.Session != "abc" || got.Code != 0 {
		t.Fatalf("unexpected hello: %+v", got)
	}
}

func TestDecodeHelloRejected(t *testing.T) {
	testlog.Start(t)
	payload := []byte(`{"syncId":"","data":{"code":1,"msg":"wrong verify key"}}`)
	if _, err := DecodeHello(payload); !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("expected ErrHandshakeRejected, got %v", err)
	}
	if _, err := DecodeHello([]byte(`{"syncId":""}`)); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
	if _, err := DecodeHello([]byte(`not json`)); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello for garbage, got %v", err)
	}
}

func TestValidateClientTransportProductionRequiresTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(Endpoint{URL: "ws://example.com/message"}); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport(Endpoint{URL: "wss://example.com/message"}); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}

	cfg.TLS.InsecureSkipVerify = false
	if err := cfg.ValidateClientTransport(Endpoint{URL: "wss://example.com/message"}); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestValidateClientTransportSchemeAndMutual(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.ValidateClientTransport(Endpoint{URL: "wss://example.com/message"}); !errors.Is(err, ErrTLSSchemeMismatch) {
		t.Fatalf("expected ErrTLSSchemeMismatch, got %v", err)
	}

	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	ep := Endpoint{URL: "wss://example.com/message"}
	if err := cfg.ValidateClientTransport(ep); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}
	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(ep); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}
	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(ep); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestClientTLSConfigDerivesServerName(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	tlsCfg, err := cfg.ClientTLSConfig(Endpoint{URL: "ws://example.com/message"})
	if err != nil || tlsCfg != nil {
		t.Fatalf("disabled tls should yield nil config, got %v err=%v", tlsCfg, err)
	}

	cfg.TLS.Enabled = true
	tlsCfg, err = cfg.ClientTLSConfig(Endpoint{URL: "wss://chat.example.com:8443/message"})
	if err != nil {
		t.Fatalf("client tls config: %v", err)
	}
	if tlsCfg.ServerName != "chat.example.com" {
		t.Fatalf("unexpected server name: %q", tlsCfg.ServerName)
	}
}

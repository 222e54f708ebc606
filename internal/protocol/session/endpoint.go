package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrEndpointURLRequired = errors.New("session: endpoint url required")
	ErrInvalidEndpointURL  = errors.New("session: invalid endpoint url")
)

// Endpoint holds the opaque connection parameters of the remote service.
//
// VerifyKey and Account map to the verifyKey/qq query parameters of a
// Mirai websocket adapter. A non-empty VerifyKey also means the server
// greets the client with a hello frame that must be consumed before the
// session is considered established.
type Endpoint struct {
	URL       string
	VerifyKey string
	Account   int64
	Header    http.Header
}

func (e Endpoint) Validate() error {
	raw := strings.TrimSpace(e.URL)
	if raw == "" {
		return ErrEndpointURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpointURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpointURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpointURL)
	}
	return nil
}

// Secure reports whether the endpoint uses wss://.
func (e Endpoint) Secure() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(e.URL)), "wss://")
}

// ExpectsHello reports whether the server sends a hello frame after upgrade.
func (e Endpoint) ExpectsHello() bool {
	return strings.TrimSpace(e.VerifyKey) != ""
}

// DialURL returns the endpoint URL with auth query parameters applied.
func (e Endpoint) DialURL() (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpointURL, err)
	}
	q := u.Query()
	if key := strings.TrimSpace(e.VerifyKey); key != "" {
		q.Set("verifyKey", key)
	}
	if e.Account > 0 {
		q.Set("qq", strconv.FormatInt(e.Account, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Host returns the host part of the endpoint URL, without port.
func (e Endpoint) Host() string {
	u, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidHello      = errors.New("session: invalid hello")
	ErrHandshakeRejected = errors.New("session: handshake rejected")
	ErrHelloTooLarge     = errors.New("session: hello too large")
)

const maxHelloBytes = 128 * 1024

// Hello is the first frame a verifying server sends after upgrade.
type Hello struct {
	SyncID  string `json:"syncId"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Session string `json:"session"`
}

// Validate accepts only code 0 with a session key.
func (h Hello) Validate() error {
	if h.Code != 0 {
		return fmt.Errorf("%w: code=%d message=%q", ErrHandshakeRejected, h.Code, h.Message)
	}
	if strings.TrimSpace(h.Session) == "" {
		return fmt.Errorf("%w: missing session", ErrInvalidHello)
	}
	return nil
}

type helloEnvelope struct {
	SyncID string `json:"syncId"`
	Data   *struct {
		Code    int    `json:"code"`
		Message string `json:"msg"`
		Session string `json:"session"`
	} `json:"data"`
}

// DecodeHello parses and validates a hello frame.
func DecodeHello(payload []byte) (Hello, error) {
	if len(payload) > maxHelloBytes {
		return Hello{}, ErrHelloTooLarge
	}
	var env helloEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrInvalidHello, err)
	}
	if env.Data == nil {
		return Hello{}, fmt.Errorf("%w: missing data", ErrInvalidHello)
	}
	h := Hello{
		SyncID:  env.SyncID,
		Code:    env.Data.Code,
		Message: env.Data.Message,
		Session: env.Data.Session,
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// EncodeHello renders the hello frame a server sends for h.
func EncodeHello(h Hello) ([]byte, error) {
	env := map[string]any{
		"syncId": h.SyncID,
		"data": map[string]any{
			"code":    h.Code,
			"msg":     h.Message,
			"session": h.Session,
		},
	}
	return json.Marshal(env)
}

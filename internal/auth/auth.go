// Package auth checks the verify key a session client presents on upgrade.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrVerifyKeyRequired = errors.New("auth: verify key required")
	ErrVerifyKeyMismatch = errors.New("auth: verify key mismatch")
)

// Validator checks a presented key.
type Validator interface {
	Validate(key string) error
}

// VerifyKey accepts exactly one shared key. An empty Key accepts anything.
type VerifyKey struct {
	Key string
}

// Enabled reports whether clients must present a key.
func (v VerifyKey) Enabled() bool {
	return strings.TrimSpace(v.Key) != ""
}

func (v VerifyKey) Validate(key string) error {
	if !v.Enabled() {
		return nil
	}
	if key == "" {
		return ErrVerifyKeyRequired
	}
	if subtle.ConstantTimeCompare([]byte(v.Key), []byte(key)) != 1 {
		return ErrVerifyKeyMismatch
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(key string) error

func (f FuncValidator) Validate(key string) error {
	return f(key)
}

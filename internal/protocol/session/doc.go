// Package session owns the client-side transport contract for one remote
// messaging endpoint.
//
// Ownership boundary:
// - endpoint parameters and dial URL construction
// - hello handshake decoding
// - timeouts, retry backoff and transport security validation
//
// The package never touches sockets directly; the bridge dialer consumes
// these helpers.
package session

package engineio

import "errors"

// Transport-protocol errors (spec.md §7): these map to HTTP 400 / immediate
// websocket close and never create or mutate a session.
var (
	ErrUnknownSID          = errors.New("engineio: unknown sid")
	ErrUpgraded            = errors.New("engineio: session already upgraded, polling rejected")
	ErrSecondConcurrentGET = errors.New("engineio: a poll is already outstanding for this sid")
	ErrBadQuery            = errors.New("engineio: bad or missing EIO/transport query parameter")
	ErrUpgradeCollision    = errors.New("engineio: websocket already attached for this sid")
)

// CloseReason is attached to every session teardown and forwarded to
// namespace disconnect hooks by the Socket.IO layer.
type CloseReason string

const (
	ReasonClientDisconnect CloseReason = "client-disconnect"
	ReasonTransportClose   CloseReason = "transport-close"
	ReasonPingTimeout      CloseReason = "ping-timeout"
	ReasonServerShutdown   CloseReason = "server-shutdown"
	ReasonParseError       CloseReason = "parse-error"
)

// Package engineio implements the Engine.IO v4 session/transport state
// machine: packet framing, the session registry, heartbeating, and the
// polling/websocket transport adapters.
package engineio

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

// PacketType is an Engine.IO packet type digit.
type PacketType byte

const (
	Open    PacketType = '0'
	Close   PacketType = '1'
	Ping    PacketType = '2'
	Pong    PacketType = '3'
	Message PacketType = '4'
	Upgrade PacketType = '5'
	Noop    PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case Open:
		return "open"
	case Close:
		return "close"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Message:
		return "message"
	case Upgrade:
		return "upgrade"
	case Noop:
		return "noop"
	default:
		return "unknown"
	}
}

// recordSeparator delimits packets inside a batched polling payload.
const recordSeparator = 0x1E

var (
	ErrUnknownPacketType = errors.New("engineio: unknown packet type")
	ErrTruncatedBatch    = errors.New("engineio: truncated binary batch")
	ErrInvalidUTF8       = errors.New("engineio: invalid utf-8 payload")
	ErrPayloadTooLarge   = errors.New("engineio: payload exceeds maximum size")
)

// Packet is a single Engine.IO packet. Binary is non-nil only for MESSAGE
// packets carrying a binary payload; otherwise Text carries the payload
// (which is empty for PING/PONG/CLOSE/UPGRADE/NOOP).
type Packet struct {
	Type   PacketType
	Text   string
	Binary []byte
}

func (p Packet) isBinary() bool { return p.Type == Message && p.Binary != nil }

// encodeForWebsocket renders a packet as a single websocket frame payload
// plus whether it should be sent as a binary frame.
func (p Packet) encodeForWebsocket() (payload []byte, binary bool) {
	if p.isBinary() {
		return p.Binary, true
	}
	return append([]byte{byte(p.Type)}, p.Text...), false
}

// encodeForPolling renders a packet as it appears inside a polling batch:
// binary MESSAGE packets are base64-framed behind a leading 'b'.
func (p Packet) encodeForPolling() string {
	if p.isBinary() {
		return "b" + base64.StdEncoding.EncodeToString(p.Binary)
	}
	return string(p.Type) + p.Text
}

// decodeWebsocketFrame decodes a single websocket frame into a packet.
func decodeWebsocketFrame(data []byte, binaryFrame bool) (Packet, error) {
	if binaryFrame {
		return Packet{Type: Message, Binary: data}, nil
	}
	if len(data) == 0 {
		return Packet{}, ErrUnknownPacketType
	}
	if !strings.HasPrefix(string(data), "2probe") && !strings.HasPrefix(string(data), "3probe") {
		if !isValidType(PacketType(data[0])) {
			return Packet{}, ErrUnknownPacketType
		}
	}
	text := string(data[1:])
	if !utf8.ValidString(text) {
		return Packet{}, ErrInvalidUTF8
	}
	return Packet{Type: PacketType(data[0]), Text: text}, nil
}

func isValidType(t PacketType) bool {
	switch t {
	case Open, Close, Ping, Pong, Message, Upgrade, Noop:
		return true
	default:
		return false
	}
}

// encodePollingBatch concatenates packets using the record separator, in
// FIFO order, honoring maxBytes: packets are appended until the next one
// would exceed maxBytes. It always includes at least one packet.
func encodePollingBatch(packets []Packet, maxBytes int) (batch string, consumed int) {
	var b strings.Builder
	for i, p := range packets {
		enc := p.encodeForPolling()
		if i > 0 {
			if maxBytes > 0 && b.Len()+1+len(enc) > maxBytes {
				break
			}
			b.WriteByte(recordSeparator)
		} else if maxBytes > 0 && len(enc) > maxBytes {
			// a single oversized packet is still sent alone
		}
		b.WriteString(enc)
		consumed = i + 1
	}
	return b.String(), consumed
}

// decodePollingBatch splits a polling POST body into packets.
func decodePollingBatch(body []byte, maxBytes int) ([]Packet, error) {
	if maxBytes > 0 && len(body) > maxBytes {
		return nil, ErrPayloadTooLarge
	}
	if len(body) == 0 {
		return nil, nil
	}
	parts := strings.Split(string(body), string(rune(recordSeparator)))
	packets := make([]Packet, 0, len(parts))
	for _, part := range parts {
		pkt, err := decodePollingPart(part)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

func decodePollingPart(part string) (Packet, error) {
	if part == "" {
		return Packet{}, ErrUnknownPacketType
	}
	if part[0] == 'b' {
		data, err := base64.StdEncoding.DecodeString(part[1:])
		if err != nil {
			return Packet{}, ErrTruncatedBatch
		}
		return Packet{Type: Message, Binary: data}, nil
	}
	t := PacketType(part[0])
	if !isValidType(t) {
		return Packet{}, ErrUnknownPacketType
	}
	text := part[1:]
	if !utf8.ValidString(text) {
		return Packet{}, ErrInvalidUTF8
	}
	return Packet{Type: t, Text: text}, nil
}

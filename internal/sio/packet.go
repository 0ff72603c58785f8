// Package sio implements the Socket.IO v5 protocol layer: packet framing,
// namespace/room bookkeeping, and event dispatch with acknowledgements, atop
// an internal/engineio session.
package sio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// PacketType is the Socket.IO packet type digit (spec.md §3/§4.1).
type PacketType byte

const (
	Connect      PacketType = '0'
	Disconnect   PacketType = '1'
	Event        PacketType = '2'
	Ack          PacketType = '3'
	ConnectError PacketType = '4'
	BinaryEvent  PacketType = '5'
	BinaryAck    PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	case BinaryEvent:
		return "BINARY_EVENT"
	case BinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN"
	}
}

func (t PacketType) isBinary() bool { return t == BinaryEvent || t == BinaryAck }

var (
	// ErrUnknownPacketType is returned for a type digit outside 0-6.
	ErrUnknownPacketType = errors.New("sio: unknown packet type")
	// ErrMalformedAckID is returned when a numeric ack id fails to parse.
	ErrMalformedAckID = errors.New("sio: malformed ack id")
	// ErrMalformedAttachmentCount is returned for a missing/invalid "<n>-" prefix on a binary packet.
	ErrMalformedAttachmentCount = errors.New("sio: malformed attachment count")
	// ErrNotJSONArray is returned when EVENT/ACK data isn't a JSON array.
	ErrNotJSONArray = errors.New("sio: payload is not a JSON array")
	// ErrMissingEventName is returned when an EVENT/BINARY_EVENT array is empty.
	ErrMissingEventName = errors.New("sio: event packet missing event name")
)

// Packet is a decoded Socket.IO packet. Data is the raw JSON array (for
// EVENT/ACK/BINARY_EVENT/BINARY_ACK) or object (for CONNECT/CONNECT_ERROR),
// kept as json.RawMessage until the caller needs typed values so the codec
// never depends on handler-specific shapes.
type Packet struct {
	Type            PacketType
	Namespace       string
	AckID           *int
	AttachmentCount int
	Data            json.RawMessage
}

// Encode renders p as the Socket.IO textual header. For binary packets this
// is only the header; the caller is responsible for sending the
// AttachmentCount binary frames that follow, in order, on the same
// transport.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(byte(p.Type))
	if p.Type.isBinary() {
		b.WriteString(strconv.Itoa(p.AttachmentCount))
		b.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.AckID != nil {
		b.WriteString(strconv.Itoa(*p.AckID))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String()
}

// Decode parses the textual grammar described in spec.md §4.1:
// <type-digit>[<n>-][<namespace>,][<ack-id>][<json-payload>]
func Decode(text string) (Packet, error) {
	if len(text) == 0 {
		return Packet{}, ErrUnknownPacketType
	}
	t := PacketType(text[0])
	if !isKnownType(t) {
		return Packet{}, ErrUnknownPacketType
	}
	rest := text[1:]

	p := Packet{Type: t, Namespace: "/"}

	if t.isBinary() {
		n, tail, err := parseAttachmentCount(rest)
		if err != nil {
			return Packet{}, err
		}
		p.AttachmentCount = n
		rest = tail
	}

	ns, rest := parseOptionalNamespace(rest)
	p.Namespace = ns

	id, rest, err := parseOptionalAckID(rest)
	if err != nil {
		return Packet{}, err
	}
	p.AckID = id

	if rest != "" {
		if (t == Event || t == Ack || t == BinaryEvent || t == BinaryAck) && rest[0] != '[' {
			return Packet{}, ErrNotJSONArray
		}
		p.Data = json.RawMessage(rest)
	}

	if t == Event || t == BinaryEvent {
		if err := validateEventName(p.Data); err != nil {
			return Packet{}, err
		}
	}

	return p, nil
}

func isKnownType(t PacketType) bool {
	switch t {
	case Connect, Disconnect, Event, Ack, ConnectError, BinaryEvent, BinaryAck:
		return true
	default:
		return false
	}
}

func parseAttachmentCount(s string) (n int, rest string, err error) {
	dash := strings.IndexByte(s, '-')
	if dash <= 0 {
		return 0, s, ErrMalformedAttachmentCount
	}
	n, convErr := strconv.Atoi(s[:dash])
	if convErr != nil || n < 1 {
		return 0, s, ErrMalformedAttachmentCount
	}
	return n, s[dash+1:], nil
}

// parseOptionalNamespace reports "/" when s doesn't begin with a namespace.
// A namespace is present iff it begins with '/' and ends at a ','.
func parseOptionalNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

func parseOptionalAckID(s string) (id *int, rest string, err error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, s, nil
	}
	v, convErr := strconv.Atoi(s[:i])
	if convErr != nil {
		return nil, s, ErrMalformedAckID
	}
	return &v, s[i:], nil
}

func validateEventName(data json.RawMessage) error {
	if len(data) == 0 {
		return ErrMissingEventName
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return ErrNotJSONArray
	}
	if len(arr) == 0 {
		return ErrMissingEventName
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return ErrMissingEventName
	}
	return nil
}

// EventArgs decodes an EVENT/BINARY_EVENT packet's Data into (name, args).
func EventArgs(data json.RawMessage) (name string, args []json.RawMessage, err error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return "", nil, ErrNotJSONArray
	}
	if len(arr) == 0 {
		return "", nil, ErrMissingEventName
	}
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, ErrMissingEventName
	}
	return name, arr[1:], nil
}

// EncodeEvent builds an EVENT packet for namespace ns, optional ackID, event
// name, and JSON-marshalable args. The packet type is always EVENT; a caller
// that has swapped []byte args for placeholders sets Type to BINARY_EVENT and
// AttachmentCount itself.
func EncodeEvent(ns string, ackID *int, event string, args ...any) (Packet, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: Event, Namespace: ns, AckID: ackID, Data: data}, nil
}

// EncodeAck builds an ACK packet carrying args as the reply payload.
func EncodeAck(ns string, ackID int, args ...any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, err
	}
	id := ackID
	return Packet{Type: Ack, Namespace: ns, AckID: &id, Data: data}, nil
}

// EncodeConnect builds a CONNECT reply carrying the namespace socket id.
func EncodeConnect(ns string, nsid string) (Packet, error) {
	data, err := json.Marshal(map[string]string{"sid": nsid})
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: Connect, Namespace: ns, Data: data}, nil
}

// EncodeConnectError builds a CONNECT_ERROR reply carrying a reason message.
func EncodeConnectError(ns string, reason string) (Packet, error) {
	data, err := json.Marshal(map[string]string{"message": reason})
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: ConnectError, Namespace: ns, Data: data}, nil
}

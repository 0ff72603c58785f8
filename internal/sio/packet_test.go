package sio

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecode_ConnectDefaultNamespace(t *testing.T) {
	p, err := Decode("0")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != Connect || p.Namespace != "/" || p.AckID != nil {
		t.Fatalf("unexpected packet: %+v", p)
	}
}

func TestDecode_ConnectWithNamespaceAndAuth(t *testing.T) {
	p, err := Decode(`0/chat,{"token":"abc"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != Connect || p.Namespace != "/chat" {
		t.Fatalf("unexpected packet: %+v", p)
	}
	var auth map[string]string
	if err := json.Unmarshal(p.Data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth["token"] != "abc" {
		t.Fatalf("expected token abc, got %+v", auth)
	}
}

func TestDecode_EventWithAckID(t *testing.T) {
	p, err := Decode(`2/chat,12["hello","world"]`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != Event || p.Namespace != "/chat" || p.AckID == nil || *p.AckID != 12 {
		t.Fatalf("unexpected packet: %+v", p)
	}
	name, args, err := EventArgs(p.Data)
	if err != nil {
		t.Fatalf("EventArgs: %v", err)
	}
	if name != "hello" || len(args) != 1 {
		t.Fatalf("expected name=hello 1 arg, got name=%q args=%+v", name, args)
	}
}

func TestDecode_BinaryEventAttachmentCount(t *testing.T) {
	p, err := Decode(`51-/chat,["upload",{"_placeholder":true,"num":0}]`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != BinaryEvent || p.AttachmentCount != 1 || p.Namespace != "/chat" {
		t.Fatalf("unexpected packet: %+v", p)
	}
}

func TestDecode_DisconnectNoPayload(t *testing.T) {
	p, err := Decode("1/chat,")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != Disconnect || p.Namespace != "/chat" || len(p.Data) != 0 {
		t.Fatalf("unexpected packet: %+v", p)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode("9garbage"); err != ErrUnknownPacketType {
		t.Fatalf("expected ErrUnknownPacketType, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(""); err != ErrUnknownPacketType {
		t.Fatalf("expected ErrUnknownPacketType for empty input, got %v", err)
	}
}

func TestDecode_MalformedAttachmentCount(t *testing.T) {
	cases := []string{"5garbage", "5-", "5x-/chat,[]", "50-/chat,[]"}
	for _, c := range cases {
		if _, err := Decode(c); err != ErrMalformedAttachmentCount {
			t.Fatalf("Decode(%q): expected ErrMalformedAttachmentCount, got %v", c, err)
		}
	}
}

func TestDecode_EventPayloadNotJSONArray(t *testing.T) {
	if _, err := Decode(`2{"not":"an array"}`); err != ErrNotJSONArray {
		t.Fatalf("expected ErrNotJSONArray, got %v", err)
	}
}

func TestDecode_EventMissingName(t *testing.T) {
	if _, err := Decode("2[]"); err != ErrMissingEventName {
		t.Fatalf("expected ErrMissingEventName, got %v", err)
	}
}

func TestEncode_RoundTripsWithDecode(t *testing.T) {
	ackID := 7
	original := Packet{
		Type:      Event,
		Namespace: "/chat",
		AckID:     &ackID,
		Data:      json.RawMessage(`["ping",1,2]`),
	}
	encoded := original.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode(%q): %v", encoded, err)
	}
	if decoded.Type != original.Type || decoded.Namespace != original.Namespace {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.AckID == nil || *decoded.AckID != ackID {
		t.Fatalf("expected ack id %d, got %+v", ackID, decoded.AckID)
	}
}

func TestEncode_DefaultNamespaceOmitted(t *testing.T) {
	p := Packet{Type: Connect, Namespace: "/"}
	if got := p.Encode(); got != "0" {
		t.Fatalf("expected bare \"0\" for default namespace connect, got %q", got)
	}
}

func TestEncodeEvent_BuildsExpectedPacket(t *testing.T) {
	p, err := EncodeEvent("/chat", nil, "greet", "hi", 42)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	if p.Type != Event || p.Namespace != "/chat" {
		t.Fatalf("unexpected packet: %+v", p)
	}
	name, args, err := EventArgs(p.Data)
	if err != nil {
		t.Fatalf("EventArgs: %v", err)
	}
	if name != "greet" || len(args) != 2 {
		t.Fatalf("expected greet with 2 args, got name=%q args=%+v", name, args)
	}
}

func TestEncodeAck_NilArgsBecomeEmptyArray(t *testing.T) {
	p, err := EncodeAck("/chat", 3)
	if err != nil {
		t.Fatalf("EncodeAck: %v", err)
	}
	if string(p.Data) != "[]" {
		t.Fatalf("expected empty JSON array payload, got %q", p.Data)
	}
	if p.AckID == nil || *p.AckID != 3 {
		t.Fatalf("expected ack id 3, got %+v", p.AckID)
	}
}

func TestEncodeConnectAndConnectError(t *testing.T) {
	p, err := EncodeConnect("/chat", "abc123")
	if err != nil {
		t.Fatalf("EncodeConnect: %v", err)
	}
	if p.Type != Connect || !strings.Contains(string(p.Data), `"sid":"abc123"`) {
		t.Fatalf("unexpected connect packet: %+v", p)
	}

	ep, err := EncodeConnectError("/chat", "unauthorized")
	if err != nil {
		t.Fatalf("EncodeConnectError: %v", err)
	}
	if ep.Type != ConnectError || !strings.Contains(string(ep.Data), "unauthorized") {
		t.Fatalf("unexpected connect_error packet: %+v", ep)
	}
}

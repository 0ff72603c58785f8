package engineio

import (
	"reflect"
	"testing"
)

func TestDeconstructReconstruct_RoundTrip(t *testing.T) {
	original := map[string]any{
		"event": "upload",
		"args": []any{
			map[string]any{"name": "file.bin", "data": []byte("hello")},
			[]any{[]byte{1, 2, 3}, "text"},
		},
	}

	var attachments [][]byte
	deconstructed := Deconstruct(original, &attachments)
	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments extracted, got %d", len(attachments))
	}

	// Placeholder leaves replace the []byte leaves.
	argsList := deconstructed.(map[string]any)["args"].([]any)
	fileObj := argsList[0].(map[string]any)
	ph, ok := fileObj["data"].(Placeholder)
	if !ok || !ph.Placeholder {
		t.Fatalf("expected a Placeholder in place of the []byte leaf, got %#v", fileObj["data"])
	}

	rebuilt, err := Reconstruct(deconstructed, attachments)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	rebuiltArgs := rebuilt.(map[string]any)["args"].([]any)
	rebuiltFile := rebuiltArgs[0].(map[string]any)
	if !reflect.DeepEqual(rebuiltFile["data"], []byte("hello")) {
		t.Fatalf("expected round-tripped bytes %q, got %#v", "hello", rebuiltFile["data"])
	}
}

func TestReconstruct_PlaceholderShapeFromJSON(t *testing.T) {
	// Mirrors what json.Unmarshal into interface{} actually produces: a
	// plain map with a float64 num, not a Placeholder struct.
	decoded := map[string]any{
		"_placeholder": true,
		"num":          float64(0),
	}
	attachments := [][]byte{[]byte("payload")}

	rebuilt, err := Reconstruct(decoded, attachments)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !reflect.DeepEqual(rebuilt, []byte("payload")) {
		t.Fatalf("expected attachment bytes, got %#v", rebuilt)
	}
}

func TestReconstruct_MalformedPlaceholder(t *testing.T) {
	cases := []map[string]any{
		{"_placeholder": true, "num": float64(5)},  // out of range
		{"_placeholder": true},                     // missing num
		{"_placeholder": true, "num": "not-a-num"}, // wrong type
	}
	for _, decoded := range cases {
		if _, err := Reconstruct(decoded, [][]byte{[]byte("x")}); err != ErrMalformedPlaceholder {
			t.Fatalf("expected ErrMalformedPlaceholder for %#v, got %v", decoded, err)
		}
	}
}

func TestReconstruct_NonPlaceholderMapUntouched(t *testing.T) {
	decoded := map[string]any{"foo": "bar", "n": float64(1)}
	rebuilt, err := Reconstruct(decoded, nil)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !reflect.DeepEqual(rebuilt, decoded) {
		t.Fatalf("expected unchanged map, got %#v", rebuilt)
	}
}

func TestCountPlaceholders(t *testing.T) {
	decoded := []any{
		map[string]any{"_placeholder": true, "num": float64(2)},
		map[string]any{"_placeholder": true, "num": float64(0)},
	}
	if got := CountPlaceholders(decoded); got != 3 {
		t.Fatalf("expected 3 (max num 2 + 1), got %d", got)
	}
}

func TestCountPlaceholders_NoPlaceholders(t *testing.T) {
	if got := CountPlaceholders(map[string]any{"a": "b"}); got != 0 {
		t.Fatalf("expected 0 for a payload with no placeholders, got %d", got)
	}
}

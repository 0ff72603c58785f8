package engineio

import "errors"

// ErrMalformedPlaceholder is returned when a decoded payload references a
// binary attachment slot that doesn't exist (missing/non-numeric num, or
// num outside the range of attachments actually received).
var ErrMalformedPlaceholder = errors.New("engineio: malformed binary placeholder")

// Placeholder is the JSON shape Socket.IO substitutes for each binary
// attachment inside an event/ack payload: {"_placeholder":true,"num":N}.
// deconstruct/reconstruct walk a decoded payload tree (maps, slices, and
// leaves) and swap real []byte values for these placeholders on the way out,
// and back again on the way in, per spec.md §4.1a.
type Placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}

// Deconstruct walks v (the result of json.Unmarshal into interface{}, so
// maps are map[string]interface{} and arrays are []interface{}) replacing
// every []byte leaf with a Placeholder and appending the removed bytes to
// attachments in encounter order. v is mutated in place; the returned value
// is v itself for convenience.
func Deconstruct(v any, attachments *[][]byte) any {
	switch t := v.(type) {
	case []byte:
		idx := len(*attachments)
		*attachments = append(*attachments, t)
		return Placeholder{Placeholder: true, Num: idx}
	case map[string]any:
		for k, child := range t {
			t[k] = Deconstruct(child, attachments)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = Deconstruct(child, attachments)
		}
		return t
	default:
		return v
	}
}

// Reconstruct is the inverse of Deconstruct: it walks v looking for
// placeholder objects (decoded as map[string]any with _placeholder:true)
// and swaps each one for attachments[num].
func Reconstruct(v any, attachments [][]byte) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if flag, hasFlag := t["_placeholder"].(bool); hasFlag && flag {
			_, num, ok := asPlaceholder(t)
			if !ok || num < 0 || num >= len(attachments) {
				return nil, ErrMalformedPlaceholder
			}
			return attachments[num], nil
		}
		for k, child := range t {
			rebuilt, err := Reconstruct(child, attachments)
			if err != nil {
				return nil, err
			}
			t[k] = rebuilt
		}
		return t, nil
	case []any:
		for i, child := range t {
			rebuilt, err := Reconstruct(child, attachments)
			if err != nil {
				return nil, err
			}
			t[i] = rebuilt
		}
		return t, nil
	default:
		return v, nil
	}
}

func asPlaceholder(m map[string]any) (bool, int, bool) {
	flag, hasFlag := m["_placeholder"].(bool)
	if !hasFlag || !flag {
		return false, 0, false
	}
	switch n := m["num"].(type) {
	case float64:
		return true, int(n), true
	case int:
		return true, n, true
	default:
		return false, 0, false
	}
}

// CountPlaceholders reports one more than the highest placeholder num a
// decoded payload references (0 when it has none), used to size the
// reassembly buffer before any binary frames have arrived.
func CountPlaceholders(v any) int {
	max := -1
	walkPlaceholders(v, &max)
	return max + 1
}

func walkPlaceholders(v any, max *int) {
	switch t := v.(type) {
	case map[string]any:
		if _, num, ok := asPlaceholder(t); ok {
			if num > *max {
				*max = num
			}
			return
		}
		for _, child := range t {
			walkPlaceholders(child, max)
		}
	case []any:
		for _, child := range t {
			walkPlaceholders(child, max)
		}
	}
}

package pixel

import (
	"encoding/json"
	"math"
)

// Strokes is the persisted form of a history: a JSON array of strokes, each
// an array of {"x", "y", "color"} objects.
//
// Decoding is tolerant because persisted data has an uncertain shape. A
// value that is not an array decodes as no strokes, a stroke that is not an
// array decodes as an empty stroke, points without integer coordinates are
// dropped, and a missing or non-string color becomes Transparent. Only
// syntactically invalid JSON is an error.
type Strokes []Stroke

// UnmarshalJSON implements json.Unmarshaler.
func (s *Strokes) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = coerceStrokes(raw)
	return nil
}

// MarshalJSON implements json.Marshaler. A nil value encodes as [].
func (s Strokes) MarshalJSON() ([]byte, error) {
	out := make([]Stroke, len(s))
	for i, st := range s {
		if st == nil {
			st = Stroke{}
		}
		out[i] = st
	}
	return json.Marshal(out)
}

// EncodeStrokes serializes strokes in the persisted representation.
func EncodeStrokes(strokes []Stroke) ([]byte, error) {
	return json.Marshal(Strokes(strokes))
}

// DecodeStrokes parses the persisted representation, coercing malformed
// entries as described on Strokes.
func DecodeStrokes(data []byte) ([]Stroke, error) {
	var s Strokes
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func coerceStrokes(raw any) Strokes {
	arr, ok := raw.([]any)
	if !ok {
		return Strokes{}
	}
	out := make(Strokes, len(arr))
	for i, entry := range arr {
		out[i] = coerceStroke(entry)
	}
	return out
}

func coerceStroke(raw any) Stroke {
	arr, ok := raw.([]any)
	if !ok {
		return Stroke{}
	}
	st := make(Stroke, 0, len(arr))
	for _, entry := range arr {
		if p, ok := coercePoint(entry); ok {
			st = append(st, p)
		}
	}
	return st
}

func coercePoint(raw any) (Point, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Point{}, false
	}
	x, ok := coerceInt(m["x"])
	if !ok {
		return Point{}, false
	}
	y, ok := coerceInt(m["y"])
	if !ok {
		return Point{}, false
	}
	c, ok := m["color"].(string)
	if !ok || c == "" {
		c = string(Transparent)
	}
	return Point{X: x, Y: y, Color: Color(c)}, true
}

func coerceInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

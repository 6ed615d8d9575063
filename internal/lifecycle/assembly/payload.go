package assembly

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Payload is one decoded backend JSON object. Numbers are json.Number.
type Payload map[string]any

// Decode parses raw JSON into a Payload, unwrapping {"data": {...}}
// envelopes that carry no record id of their own.
func Decode(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	if p == nil {
		return Payload{}, nil
	}
	if inner, ok := p["data"].(map[string]any); ok {
		if _, hasID := p.first(fieldID); !hasID {
			return Payload(inner), nil
		}
	}
	return p, nil
}

// first returns the first present value for a logical field. nil and blank
// strings are absent.
func (p Payload) first(f fields) (any, bool) {
	for _, name := range f {
		v, ok := p[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func (p Payload) raw(f fields) any {
	v, _ := p.first(f)
	return v
}

// str renders a scalar as text. Nested objects resolve to their id.
func (p Payload) str(f fields) string {
	v, ok := p.first(f)
	if !ok {
		return ""
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return Payload(t).str(fieldID)
	}
	return ""
}

func (p Payload) object(f fields) Payload {
	for _, name := range f {
		if m, ok := p[name].(map[string]any); ok {
			return Payload(m)
		}
	}
	return nil
}

func (p Payload) list(f fields) []any {
	for _, name := range f {
		if l, ok := p[name].([]any); ok {
			return l
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case json.Number:
		f, _ := t.Float64()
		return f != 0
	}
	return false
}

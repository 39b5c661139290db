package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClinicalTimeLayout is the timestamp format used by the hospital registry.
// The format sorts lexicographically, so watermark comparisons on raw strings
// are safe.
const ClinicalTimeLayout = "2006-01-02 15:04:05"

// ClinicalDateLayout is the date-only variant accepted in several fields.
const ClinicalDateLayout = "2006-01-02"

// Payload is the structured content of one source record: a flat mapping of
// field name to value. The registry serves mixed scalar types (strings and
// numbers); all values are normalized to strings on decode.
type Payload map[string]string

// UnmarshalJSON coerces every scalar value to its string form. Nested objects
// or arrays are rejected: the registry contract is a flat record.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Payload, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			return fmt.Errorf("payload field %q has non-scalar value", k)
		}
	}
	*p = out
	return nil
}

// Get returns the trimmed value of a field, or "" when absent.
func (p Payload) Get(field string) string {
	return strings.TrimSpace(p[field])
}

// Canonical returns the canonical serialized form of the payload. Keys are
// emitted in sorted order, so two payloads with the same field/value pairs
// compare equal regardless of insertion order.
func (p Payload) Canonical() (string, error) {
	if p == nil {
		return "", nil
	}
	b, err := json.Marshal(map[string]string(p))
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return string(b), nil
}

// Equal reports content equality between two payloads, independent of field order.
func (p Payload) Equal(other Payload) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ParsePayload decodes a canonical (or raw) serialized payload.
func ParsePayload(data string) (Payload, error) {
	if data == "" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return p, nil
}

// ParseClinicalTime parses a registry timestamp, accepting the date-only form.
func ParseClinicalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(ClinicalTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(ClinicalDateLayout, s)
}

// SplitList splits a comma-joined positional list into trimmed entries.
// An empty input yields nil.
func SplitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

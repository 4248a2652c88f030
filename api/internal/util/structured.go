package util

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparseable means no JSON value could be recovered from model output.
var ErrUnparseable = errors.New("structured output unparseable")

// ParseStructured extracts a JSON value from raw model output. It never fails:
// empty input and unparseable input both yield an empty object.
//
// The first '{' .. last '}' span is tried first; if that is missing or invalid,
// a markdown code fence is stripped and the remainder parsed.
func ParseStructured(raw string) any {
	v, _ := parseStructured(raw)
	return v
}

// parseStructured reports false when every strategy failed on non-empty input.
func parseStructured(raw string) (any, bool) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, true
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		var v any
		if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err == nil {
			return v, true
		}
	}

	var v any
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &v); err == nil && v != nil {
		return v, true
	}
	return map[string]any{}, false
}

// DecodeStructured runs ParseStructured and decodes the result into out.
// On a shape mismatch out may be partially filled; callers treat the error the
// same as missing fields. Unparseable output leaves out untouched and returns
// ErrUnparseable, so the caller can record the diagnostic with its own logger.
func DecodeStructured(raw string, out any) error {
	v, ok := parseStructured(raw)
	if !ok {
		return ErrUnparseable
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// StructuredBytes is ParseStructured re-encoded as JSON.
func StructuredBytes(raw string) []byte {
	b, err := json.Marshal(ParseStructured(raw))
	if err != nil {
		return []byte("{}")
	}
	return b
}

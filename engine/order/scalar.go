package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var jsonNull = []byte("null")

// Text is a tolerant string field. JSON strings, numbers and booleans are
// accepted and kept in their textual form; null leaves the value unset.
type Text struct {
	Value string
	Valid bool
}

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*t = Text{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text{Value: s, Valid: true}
	case '{', '[':
		return fmt.Errorf("expected text, got %s", kindOf(data))
	default:
		// numbers and booleans keep their literal spelling
		*t = Text{Value: string(data), Valid: true}
	}
	return nil
}

// Ptr returns nil for an unset value.
func (t Text) Ptr() *string {
	if !t.Valid {
		return nil
	}
	v := t.Value
	return &v
}

// ID is a Text restricted to identifiers. Booleans and the number zero decode
// as unset so a required check reports them as missing.
type ID struct {
	Text
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch kindOf(data) {
	case "boolean":
		*id = ID{}
		return nil
	case "number":
		if d, err := decimal.NewFromString(string(data)); err == nil && d.IsZero() {
			*id = ID{}
			return nil
		}
	}
	return id.Text.UnmarshalJSON(data)
}

// Int is a tolerant integer field accepting integral numbers or numeric strings.
type Int struct {
	Value int64
	Valid bool
}

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*i = Int{}
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*i = Int{}
			return nil
		}
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = Int{Value: v, Valid: true}
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() {
		return fmt.Errorf("expected integer, got %s", string(data))
	}
	*i = Int{Value: d.IntPart(), Valid: true}
	return nil
}

func (i Int) Ptr() *int64 {
	if !i.Valid {
		return nil
	}
	v := i.Value
	return &v
}

// Number is a tolerant decimal field for money, measurements, ratings and
// coordinates. Numeric strings are accepted; an empty string counts as null.
type Number struct {
	decimal.NullDecimal
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*n = Number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = Number{}
			return nil
		}
		data = []byte(s)
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("expected number, got %s", string(data))
	}
	*n = Number{decimal.NewNullDecimal(d)}
	return nil
}

// Text renders the number in canonical decimal form, or "" when unset.
func (n Number) Text() string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.String()
}

// Scalar keeps any raw JSON value for fields whose canonical form is decided
// after decoding (flags and timestamps). JSON null is stored as unset.
type Scalar struct {
	raw json.RawMessage
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		s.raw = nil
		return nil
	}
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// RawScalar wraps a literal JSON value. Used by callers building documents
// in code.
func RawScalar(v string) Scalar {
	if v == "" || v == "null" {
		return Scalar{}
	}
	return Scalar{raw: json.RawMessage(v)}
}

func (s Scalar) IsNull() bool {
	return len(s.raw) == 0
}

// String returns the decoded value when the scalar holds a JSON string.
func (s Scalar) String() (string, bool) {
	if s.IsNull() || s.raw[0] != '"' {
		return "", false
	}
	var v string
	if err := json.Unmarshal(s.raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// Raw returns the JSON literal, or "null".
func (s Scalar) Raw() string {
	if s.IsNull() {
		return "null"
	}
	return string(s.raw)
}

func kindOf(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

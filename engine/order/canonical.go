package order

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the canonical storage form of every timestamp column.
const DateTimeLayout = "2006-01-02 15:04:05"

const addressIDLength = 32

// ErrNotText is returned by ParseDateTime when the raw value is not a JSON string.
var ErrNotText = errors.New("timestamp is not a string")

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime canonicalizes an ISO-8601 style timestamp to DateTimeLayout.
// The wall clock is kept as written; a UTC offset is accepted but not applied.
// Fractional seconds are dropped.
func ParseDateTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format(DateTimeLayout), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", fmt.Errorf("unrecognized timestamp %q: %w", s, firstErr)
}

// canonicalDateTime returns nil for null or empty values and an error for
// values that are present but cannot be canonicalized.
func canonicalDateTime(v Scalar) (*string, error) {
	if v.IsNull() {
		return nil, nil
	}
	s, ok := v.String()
	if !ok {
		return nil, ErrNotText
	}
	if s == "" {
		return nil, nil
	}
	out, err := ParseDateTime(s)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// NormalizeBool maps a raw flag to true, false or unknown (nil).
// Text "true", "1", "yes" and "y" are true in any case and all other text is
// false. Integral numbers are true when non-zero. Other JSON types are unknown.
func NormalizeBool(v Scalar) *bool {
	if v.IsNull() {
		return nil
	}
	raw := v.Raw()
	switch raw {
	case "true":
		return boolPtr(true)
	case "false":
		return boolPtr(false)
	}
	if s, ok := v.String(); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "y":
			return boolPtr(true)
		default:
			return boolPtr(false)
		}
	}
	if isIntegralLiteral(raw) {
		return boolPtr(strings.TrimLeft(strings.TrimPrefix(raw, "-"), "0") != "")
	}
	return nil
}

func isIntegralLiteral(raw string) bool {
	digits := strings.TrimPrefix(raw, "-")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func boolPtr(b bool) *bool {
	return &b
}

// AddressID derives the content-hash identity of an address from street,
// area, city, district, country, latitude and longitude. Text parts are
// trimmed and lower-cased, coordinates use their canonical decimal form,
// and absent parts contribute an empty segment.
func AddressID(a *AddressDoc) string {
	parts := []string{
		foldText(a.Street),
		foldText(a.Area),
		foldText(a.City),
		foldText(a.District),
		foldText(a.Country),
		strings.TrimSpace(a.Latitude.Text()),
		strings.TrimSpace(a.Longitude.Text()),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:addressIDLength]
}

func foldText(t Text) string {
	if !t.Valid {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(t.Value))
}

// naturalKey returns nil for absent or blank identifiers.
func naturalKey(t Text) *string {
	if !t.Valid || strings.TrimSpace(t.Value) == "" {
		return nil
	}
	return t.Ptr()
}

package tutor

import (
	"strings"
	"time"
)

// Timestamp wraps time.Time with tolerant JSON decoding. The Tutor Service
// emits ISO 8601 instants that may omit the timezone offset, which the
// stock RFC 3339 parser rejects.
type Timestamp struct {
	time.Time
}

// Now returns the current instant as a Timestamp.
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO instant, with or without offset. The zero
// Timestamp and ok=false are returned when nothing matches.
func ParseTimestamp(s string) (Timestamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, true
		}
	}
	return Timestamp{}, false
}

// MarshalJSON encodes the instant as an RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON accepts any of the layouts the service is known to emit.
// Unparseable values decode to the zero Timestamp rather than failing the
// surrounding document.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	if parsed, ok := ParseTimestamp(s); ok {
		*t = parsed
	} else {
		*t = Timestamp{}
	}
	return nil
}

package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ID is an identifier the service may send as a number or a string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*id = ""
			return nil
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*id = ""
		return nil
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Number is a numeric field that may arrive as a JSON number, a numeric
// string, an empty string or null. Unparseable input decodes to zero.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = 0
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*n = Number(v)
		}
		return nil
	}
	if bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*n = Number(v)
	}
	return nil
}

// Float returns the value as float64.
func (n Number) Float() float64 { return float64(n) }

// Int returns the value truncated to int.
func (n Number) Int() int { return int(n) }

// Flag is a boolean the service may send as true/false, 1/0 or "true"/"1".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.ToLower(strings.TrimSpace(string(b))), "\"")
	switch s {
	case "true", "1", "yes", "success", "ok":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Text is a string field that may arrive as a number.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = ""
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*t = Text(strings.TrimSpace(s))
		}
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return nil
	}
	*t = Text(string(b))
	return nil
}

// String returns the text.
func (t Text) String() string { return string(t) }

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp formats the service emits. Unknown input is the zero time.
func ParseTime(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// decodeList reads either a bare JSON array or an object wrapping one under "data".
// Pagination fields found on the wrapping object are returned as well.
func decodeList[T any](raw json.RawMessage) ([]T, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, 0, nil
	}
	switch raw[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, 0, err
		}
		return out, 0, nil
	case '{':
		var wrapped struct {
			Data     json.RawMessage `json:"data"`
			LastPage Number          `json:"last_page"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, 0, err
		}
		items, nested, err := decodeList[T](wrapped.Data)
		if err != nil {
			return nil, 0, err
		}
		lastPage := wrapped.LastPage.Int()
		if nested > lastPage {
			lastPage = nested
		}
		return items, lastPage, nil
	default:
		return nil, 0, nil
	}
}

package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Epoch is a Unix timestamp in seconds as Gerrit sends it. Zero means the
// value was absent or unparseable; older servers send it quoted.
type Epoch int64

// UnmarshalJSON accepts 1380000000, "1380000000" and null. Anything else
// decodes to zero rather than failing the whole record.
func (e *Epoch) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*e = 0
		return nil
	}
	*e = Epoch(v)
	return nil
}

// Time converts to local time. ok is false when the timestamp is missing.
func (e Epoch) Time() (t time.Time, ok bool) {
	if e <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(e), 0), true
}

// IsZero returns true if the timestamp is missing.
func (e Epoch) IsZero() bool {
	return e <= 0
}

// NewEpoch creates an Epoch from time.Time.
func NewEpoch(t time.Time) Epoch {
	if t.IsZero() {
		return 0
	}
	return Epoch(t.Unix())
}

// FlexString decodes either a JSON string or a JSON number. Gerrit has sent
// approval values and patch set numbers both ways across versions.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Pointer helper functions for working with optional fields.

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the value pointed to, or the zero value if nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

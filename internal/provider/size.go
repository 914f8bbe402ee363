package provider

import (
	"encoding/json"
)

// Size is a byte count that hubs send either as a JSON number or as a
// numeric string. Anything else decodes as 0.
type Size int64

func (s *Size) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil || n == "" {
		*s = 0
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*s = Size(max(i, 0))
		return nil
	}
	if f, err := n.Float64(); err == nil && f > 0 {
		*s = Size(f)
		return nil
	}
	*s = 0
	return nil
}

// FirstSize returns the first positive size found under keys in obj.
func FirstSize(obj map[string]json.RawMessage, keys ...string) int64 {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s Size
		if err := json.Unmarshal(raw, &s); err == nil && s > 0 {
			return int64(s)
		}
	}
	return 0
}

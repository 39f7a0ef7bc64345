package model

import "strings"

// Header is an ordered multimap of canonical header name to its values, in
// insertion order. Canonicalization itself is an excluded collaborator
// (spec §6); Header only preserves whatever keys it is given.
type Header struct {
	keys   []string
	values [][]string
}

// NewHeader creates an empty Header.
func NewHeader() *Header {
	return &Header{}
}

// Add appends a value for key, preserving insertion order for new keys.
func (h *Header) Add(key, value string) {
	for i, k := range h.keys {
		if strings.EqualFold(k, key) {
			h.values[i] = append(h.values[i], value)
			return
		}
	}
	h.keys = append(h.keys, key)
	h.values = append(h.values, []string{value})
}

// Set replaces all values for key with a single value.
func (h *Header) Set(key, value string) {
	for i, k := range h.keys {
		if strings.EqualFold(k, key) {
			h.values[i] = []string{value}
			return
		}
	}
	h.Add(key, value)
}

// Get returns the first value for key, or "".
func (h *Header) Get(key string) string {
	for i, k := range h.keys {
		if strings.EqualFold(k, key) {
			if len(h.values[i]) > 0 {
				return h.values[i][0]
			}
			return ""
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (h *Header) Values(key string) []string {
	for i, k := range h.keys {
		if strings.EqualFold(k, key) {
			return h.values[i]
		}
	}
	return nil
}

// Has reports whether key is present at all.
func (h *Header) Has(key string) bool {
	for _, k := range h.keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Keys returns header names in insertion order.
func (h *Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Each calls fn once per (key, value) pair in insertion order.
func (h *Header) Each(fn func(key, value string)) {
	for i, k := range h.keys {
		for _, v := range h.values[i] {
			fn(k, v)
		}
	}
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	out := &Header{
		keys:   make([]string, len(h.keys)),
		values: make([][]string, len(h.values)),
	}
	copy(out.keys, h.keys)
	for i, v := range h.values {
		vv := make([]string, len(v))
		copy(vv, v)
		out.values[i] = vv
	}
	return out
}

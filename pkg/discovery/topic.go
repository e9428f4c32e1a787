package discovery

import (
	"encoding/hex"
	"strings"
)

// Topic is an opaque identifier grouping peers interested in the same
// content. It normalizes to lowercase hex so that the same id supplied
// in distinct encodings maps to the same wire name (spec.md §3, §6).
type Topic string

// NewTopic normalizes raw bytes into a Topic.
func NewTopic(raw []byte) Topic {
	return Topic(hex.EncodeToString(raw))
}

// TopicFromString normalizes a caller-supplied hex string (which may
// already be correctly cased, or not) into a canonical Topic.
func TopicFromString(s string) (Topic, error) {
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return "", err
	}
	return NewTopic(raw), nil
}

// String renders the canonical lowercase-hex form.
func (t Topic) String() string {
	return string(t)
}

// WireName returns the fully-qualified DNS name for this topic under
// the given domain suffix: "<id>.<domain>" (spec.md §3).
func (t Topic) WireName(domain string) string {
	return string(t) + "." + domain
}

// Package urn models catalog entity references of the form
// urn:ms:<entityType>:<key>, where a key may itself be a parenthesized
// tuple whose elements can be nested urns.
package urn

import (
	"fmt"
	"strings"
)

const prefix = "urn:ms:"

// URN is an immutable reference to a catalog entity.
type URN struct {
	entityType string
	key        string
}

// New creates a URN from an entity type and key.
func New(entityType, key string) (URN, error) {
	if entityType == "" {
		return URN{}, fmt.Errorf("entity type is required")
	}
	if key == "" {
		return URN{}, fmt.Errorf("key is required for entity type %q", entityType)
	}
	return URN{entityType: entityType, key: key}, nil
}

// Parse parses a urn string of the form urn:ms:<entityType>:<key>.
func Parse(raw string) (URN, error) {
	if !strings.HasPrefix(raw, prefix) {
		return URN{}, fmt.Errorf("urn %q must start with %q", raw, prefix)
	}
	rest := raw[len(prefix):]
	entityType, key, ok := strings.Cut(rest, ":")
	if !ok || entityType == "" || key == "" {
		return URN{}, fmt.Errorf("urn %q must have an entity type and a key", raw)
	}
	return URN{entityType: entityType, key: key}, nil
}

// MustParse parses a urn string and panics on error. Test helper.
func MustParse(raw string) URN {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// EntityType returns the entity type segment of the urn.
func (u URN) EntityType() string { return u.entityType }

// Key returns the key segment of the urn, parentheses included for tuple keys.
func (u URN) Key() string { return u.key }

// String returns the canonical string form of the urn.
func (u URN) String() string {
	if u.entityType == "" {
		return ""
	}
	return prefix + u.entityType + ":" + u.key
}

// IsZero reports whether the urn is the zero value.
func (u URN) IsZero() bool { return u.entityType == "" }

// TupleParts splits a parenthesized tuple key into its top-level elements.
// Nested parentheses are kept intact, so a tuple element that is itself a
// urn with a tuple key survives the split. A non-tuple key is returned as a
// single element.
func (u URN) TupleParts() []string {
	key := u.key
	if !strings.HasPrefix(key, "(") || !strings.HasSuffix(key, ")") {
		return []string{key}
	}
	inner := key[1 : len(key)-1]
	var parts []string
	depth := 0
	start := 0
	for i, r := range inner {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, inner[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, inner[start:])
	return parts
}

// MarshalText implements encoding.TextMarshaler so urns serialize as plain
// strings in JSON payloads and cache entries.
func (u URN) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URN) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Package idgen produces identifiers for delivery requests and journal rows.
//
// Constructors that mint IDs accept a Generator so tests can substitute a
// deterministic sequence.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID of gen, e.g. "req_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator yielding prefix1, prefix2, ... Intended for tests.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Request mints delivery request IDs.
var Request Generator = Prefixed("req_", Default)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// ParsePrefixed checks that id is prefix followed by a valid UUID and returns it unchanged.
func ParsePrefixed(prefix, id string) (string, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return "", fmt.Errorf("idgen: %q lacks prefix %q", id, prefix)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return id, nil
}

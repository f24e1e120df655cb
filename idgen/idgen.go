// Package idgen produces identifiers for capture runs and ledger rows.
// Constructors that persist rows accept a Generator so tests can pin IDs.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. They sort by
// creation time, which keeps ledger rows in run order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen ("run_", "tgt_", "drop_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator yielding prefix-1, prefix-2, ... Used where
// IDs must be predictable. Safe for concurrent use.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

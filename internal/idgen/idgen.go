// Package idgen generates the lexicographically-sortable 26-char identifiers
// spec.md's data model calls for, using the ULID primitive the retrieved
// corpus reaches for over hand-rolling one against uuid or time.Now alone.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID, monotonic within the process so ids generated in
// the same millisecond still sort by generation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewAt returns a ULID stamped with t instead of time.Now, used when a
// record's own timestamp must drive its id (e.g. backfilled records).
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

package ids

import (
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier used for request correlation.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Counter hands out increasing integer identifiers starting at 1.
// Values are never reused. The zero value is ready to use.
type Counter struct {
	last atomic.Int64
}

// Next returns the next identifier.
func (c *Counter) Next() int64 {
	return c.last.Add(1)
}

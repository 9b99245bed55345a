package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewToken returns a time-sortable ULID encoded as a 26-character string.
// Tokens are minted for message IDs and for subject identifiers that did not
// arrive with one; unlike the timestamp-formatted strings the legacy system
// used, a ULID is unique by construction.
func NewToken() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

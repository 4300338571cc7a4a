package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewEvent returns an identifier for ledger events.
func NewEvent() string { return "evt_" + New() }

// NewSeal returns an identifier for trust-timestamp seals.
func NewSeal() string { return "seal_" + New() }

// NewItem returns an identifier for inventory items.
func NewItem() string { return "itm_" + New() }

// NewContract returns an identifier for contracts.
func NewContract() string { return "ctr_" + New() }

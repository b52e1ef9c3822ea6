package ring

import (
	"github.com/LerianStudio/ledgercore/internal/domain"
)

// Slot is the mutable carrier stored in the ring buffer. Producers fill its
// fields in place when they claim a sequence; nothing is allocated on the
// hot path beyond what the producer itself had to build (spec.md §9
// "per-event allocation"). EndOfBatch is set on the slot holding the last
// event of each Publish call, letting batch-oriented consumers (journal,
// read-model buffer) know when to flush.
type Slot struct {
	Event      domain.AccountEvent
	EndOfBatch bool
}

// reset clears a slot for reuse. The ring never frees slots; it wraps
// around and overwrites them once every consumer has passed that index.
func (s *Slot) reset() {
	s.Event = domain.AccountEvent{}
	s.EndOfBatch = false
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time aggregate state plus the sequence at which it
// was taken. For a fixed account id, the snapshot with the highest
// LastEventSequence is authoritative (spec.md §3).
type Snapshot struct {
	AccountID          string
	Balance            decimal.Decimal
	LastEventSequence  uint64
	ProcessedTxSet     map[string]struct{}
	CreatedAt          time.Time
}

// SnapshotFromAccount takes the defensive copy the Janitor needs (spec.md §4.3).
func SnapshotFromAccount(a *Account, sequence uint64, now time.Time) Snapshot {
	return Snapshot{
		AccountID:         a.ID,
		Balance:           a.Balance,
		LastEventSequence: sequence,
		ProcessedTxSet:    a.CloneProcessed(),
		CreatedAt:         now,
	}
}

// Restore rebuilds an aggregate's state from the snapshot, ready for replay
// to continue from LastEventSequence+1 (spec.md §4.2).
func (s Snapshot) Restore() *Account {
	processed := make(map[string]struct{}, len(s.ProcessedTxSet))
	for k := range s.ProcessedTxSet {
		processed[k] = struct{}{}
	}

	return &Account{
		ID:        s.AccountID,
		Balance:   s.Balance,
		Version:   s.LastEventSequence + 1,
		Processed: processed,
	}
}

// processedTxSetJSON is the wire shape persisted into the
// account_snapshots.processed_transactions JSON column (spec.md §6).
type processedTxSetJSON struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// MarshalProcessedTxSet serialises the processed-transaction set reversibly
// (spec.md §4.3 invariant).
func MarshalProcessedTxSet(set map[string]struct{}) ([]byte, error) {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	return json.Marshal(processedTxSetJSON{TransactionIDs: ids})
}

// UnmarshalProcessedTxSet is the inverse of MarshalProcessedTxSet.
func UnmarshalProcessedTxSet(raw []byte) (map[string]struct{}, error) {
	if len(raw) == 0 {
		return map[string]struct{}{}, nil
	}

	var wire processedTxSetJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(wire.TransactionIDs))
	for _, id := range wire.TransactionIDs {
		set[id] = struct{}{}
	}

	return set, nil
}

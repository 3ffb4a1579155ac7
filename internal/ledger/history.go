package ledger

// AwardRecord is one block outcome. Records are immutable once appended
// and amounts are micro-tokens; conversion to display units happens in
// the gateway.
type AwardRecord struct {
	Sequence    uint64
	Winner      string
	Reward      int64
	Balance     int64 // winner's balance after the credit
	TotalMinted int64 // cumulative reward ever granted, this block included
}

// History is the append-only log of past awards. Like Ledger it is
// plain data serialized by the engine.
type History struct {
	records []AwardRecord
	minted  int64
}

// NewHistory returns an empty history log.
func NewHistory() *History {
	return &History{}
}

// Append records an award and returns the completed record. Sequence
// numbers start at 1 and increase by one per append.
func (h *History) Append(winner string, reward, balance int64) AwardRecord {
	h.minted += reward
	rec := AwardRecord{
		Sequence:    uint64(len(h.records)) + 1,
		Winner:      winner,
		Reward:      reward,
		Balance:     balance,
		TotalMinted: h.minted,
	}
	h.records = append(h.records, rec)
	return rec
}

// Records returns a copy of the full log in append order.
func (h *History) Records() []AwardRecord {
	out := make([]AwardRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Len reports the number of recorded awards.
func (h *History) Len() int {
	return len(h.records)
}

// TotalMinted reports the running sum of all rewards ever granted.
func (h *History) TotalMinted() int64 {
	return h.minted
}

package model

// CycleEntry is the reduced form of one identity kept between cycles.
type CycleEntry struct {
	Record  ProcessRecord
	Verdict HealthVerdict
}

// CycleTable holds the last completed cycle. It is replaced wholesale at the end of every
// cycle and only read while the next cycle collects.
type CycleTable struct {
	Entries map[IdentityKey]CycleEntry
	System  *SystemSnapshot
}

func NewCycleTable() CycleTable {
	return CycleTable{Entries: make(map[IdentityKey]CycleEntry)}
}

func (t CycleTable) Lookup(key IdentityKey) (CycleEntry, bool) {
	if t.Entries == nil {
		return CycleEntry{}, false
	}
	e, ok := t.Entries[key]
	return e, ok
}

func (t CycleTable) Len() int {
	return len(t.Entries)
}

package models

// CacheEntry is the persisted last-known state of one strike.
type CacheEntry struct {
	CallOI  int64   `json:"ce"`
	PutOI   int64   `json:"pe"`
	CallLTP float64 `json:"ce_ltp"`
	PutLTP  float64 `json:"pe_ltp"`
}

// Snapshot maps a canonical strike key to its last persisted entry.
type Snapshot map[string]CacheEntry

// EntryFor converts an observation into the entry persisted for its strike.
func EntryFor(o StrikeObservation) CacheEntry {
	return CacheEntry{
		CallOI:  o.CallOI,
		PutOI:   o.PutOI,
		CallLTP: o.CallLTP,
		PutLTP:  o.PutLTP,
	}
}

// SnapshotOf builds a full-replace snapshot from the observations of one cycle.
// Later observations of the same strike win.
func SnapshotOf(observations []StrikeObservation) Snapshot {
	s := make(Snapshot, len(observations))
	for _, o := range observations {
		if o.Strike == "" {
			continue
		}
		s[o.Strike] = EntryFor(o)
	}
	return s
}

// Package forks resolves which consensus fork is active for a given slot or
// timestamp, driving which ExecutionPayload/PayloadAttributes fields the
// payload builder must populate.
package forks

// Fork identifies a consensus fork in activation order. PreBellatrix is not
// a real post-merge fork; it represents any slot before the merge, which
// the payload builder must reject rather than build a dummy payload for.
type Fork int

const (
	PreBellatrix Fork = iota - 1
	Bellatrix
	Capella
	Deneb
	Electra
)

func (f Fork) String() string {
	switch f {
	case PreBellatrix:
		return "pre-bellatrix"
	case Bellatrix:
		return "bellatrix"
	case Capella:
		return "capella"
	case Deneb:
		return "deneb"
	case Electra:
		return "electra"
	default:
		return "unknown"
	}
}

// AtLeast reports whether f is at or after other in activation order.
func (f Fork) AtLeast(other Fork) bool { return f >= other }

// Schedule maps fork-activation epochs (in slots) to the network's genesis
// time, resolving the active fork for any slot or timestamp.
type Schedule struct {
	GenesisTime    uint64 // unix seconds
	SecondsPerSlot uint64

	// BellatrixSlot is the merge slot; any slot before it is PreBellatrix
	// and rejected by the payload builder. Zero means the merge happened
	// at genesis (the default for a post-merge-only deployment).
	BellatrixSlot uint64
	CapellaSlot   uint64
	DenebSlot     uint64
	ElectraSlot   uint64
}

// MainnetSchedule is the default schedule, reflecting mainnet's historical
// fork slots at 12 seconds per slot.
func MainnetSchedule() Schedule {
	return Schedule{
		GenesisTime:    1606824023,
		SecondsPerSlot: 12,
		BellatrixSlot:  4636672,
		CapellaSlot:    6209536,
		DenebSlot:      8626176,
		ElectraSlot:    364032 * 1_000_000, // far future, so Electra is not active under this schedule
	}
}

// ForkAtSlot returns the fork active at the given slot.
func (s Schedule) ForkAtSlot(slot uint64) Fork {
	switch {
	case slot >= s.ElectraSlot:
		return Electra
	case slot >= s.DenebSlot:
		return Deneb
	case slot >= s.CapellaSlot:
		return Capella
	case slot >= s.BellatrixSlot:
		return Bellatrix
	default:
		return PreBellatrix
	}
}

// SlotAtTimestamp converts a unix timestamp to a slot number, given the
// schedule's genesis time and slot duration. Timestamps at or before
// genesis return slot 0; callers that must reject pre-genesis timestamps
// outright should compare against GenesisTime directly.
func (s Schedule) SlotAtTimestamp(timestamp uint64) uint64 {
	if timestamp <= s.GenesisTime || s.SecondsPerSlot == 0 {
		return 0
	}
	return (timestamp - s.GenesisTime) / s.SecondsPerSlot
}

// ForkAtTimestamp returns the fork active at the given unix timestamp.
func (s Schedule) ForkAtTimestamp(timestamp uint64) Fork {
	return s.ForkAtSlot(s.SlotAtTimestamp(timestamp))
}

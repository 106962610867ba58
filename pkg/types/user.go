package types

// CapabilityBypass exempts a user from all marking-based visibility
// checks.
const CapabilityBypass = "BYPASS"

// Marking is a data-classification label. Type groups markings under a
// definition type (e.g. "TLP"); visibility is decided per group.
type Marking struct {
	InternalID string
	Type       string
}

// User carries the grants evaluated by the access filter on every read.
// AllowedMarkings is the set of markings granted to the user.
// AllMarkings is the universe of markings known to exist, from which
// the forbidden set is derived per definition type. Both are dynamic
// and must be re-read per call.
type User struct {
	ID              string
	Capabilities    []string
	AllowedMarkings []Marking
	AllMarkings     []Marking
}

func (u *User) HasCapability(cap string) bool {
	for _, c := range u.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// AllowedMarkingIDs returns the granted marking ids as a set.
func (u *User) AllowedMarkingIDs() map[string]bool {
	out := make(map[string]bool, len(u.AllowedMarkings))
	for _, m := range u.AllowedMarkings {
		out[m.InternalID] = true
	}
	return out
}

// MarkingsByType groups the marking universe by definition type.
func (u *User) MarkingsByType() map[string][]Marking {
	out := make(map[string][]Marking)
	for _, m := range u.AllMarkings {
		out[m.Type] = append(out[m.Type], m)
	}
	return out
}

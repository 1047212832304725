// Package groups defines the 32-bit bitmasks used to classify which
// agents avoid, and which ignore, which other agents.
package groups

// Groups is a fixed 32-bit bitset, one bit per logical group.
type Groups uint32

// None is the empty group set.
const None Groups = 0

// All is the full group set.
const All Groups = 0xFFFFFFFF

// Has reports whether g contains every bit in other.
func (g Groups) Has(other Groups) bool {
	return g&other == other
}

// Intersects reports whether g and other share any bit.
func (g Groups) Intersects(other Groups) bool {
	return g&other != 0
}

// Add returns g with other's bits set.
func (g Groups) Add(other Groups) Groups {
	return g | other
}

// Remove returns g with other's bits cleared.
func (g Groups) Remove(other Groups) Groups {
	return g &^ other
}

// ShouldIgnore reports whether an agent with avoid-mask groupsToAvoid and
// ignore-mask groupsToIgnore should skip a candidate whose own group
// membership is candidateGroup. Ignore dominates avoid: a candidate is
// skipped either because it isn't in the avoided set, or because it is
// explicitly ignored.
func ShouldIgnore(groupsToAvoid, groupsToIgnore, candidateGroup Groups) bool {
	return !groupsToAvoid.Intersects(candidateGroup) || groupsToIgnore.Intersects(candidateGroup)
}

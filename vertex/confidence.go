package vertex

import "github.com/qudag/qudag/choices"

// Confidence is the per-vertex running state the QR-Avalanche engine
// maintains (§3, §4.4): a chit from the most recent successful round, the
// streak of consecutive successful quorums, the all-time accumulated
// confidence, whether this vertex is currently preferred within its
// conflict set, and the terminal decision once one is reached.
type Confidence struct {
	Chit                bool
	ConsecutiveSuccesses uint32
	CumulativeConfidence uint32
	Preference           bool
	Decision             choices.Status
}

// NewConfidence returns the Confidence of a freshly inserted vertex.
// Preference is supplied by the caller according to §4.4's
// "preferred iff no sibling exists" rule, since only the conflict registry
// knows whether siblings exist at insertion time.
func NewConfidence(preferred bool) Confidence {
	return Confidence{Preference: preferred, Decision: choices.Undecided}
}

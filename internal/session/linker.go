package session

import "time"

// linkSkewTolerance absorbs small clock/logging skew: an orphan may start
// up to this long before its candidate anchor and still be linked.
const linkSkewTolerance = 5 * time.Second

// LinkOrphans attempts to reattach each orphan to the best-matching
// pre-session and returns the legs that remain unlinked.
//
// Only operator legs are eligible; queue and other-typed orphans stay
// unlinked. A pre-session is a candidate when the orphan's source number
// equals its anchor's source number and the signed delta orphanTime -
// anchorTime falls within [-linkSkewTolerance, window], both bounds
// inclusive. Among candidates the smallest non-negative-biased delta wins,
// ties going to the pre-session encountered first.
//
// This is a greedy best-local-match pass with no global re-optimization:
// once linked, an orphan is never reconsidered, and pre-sessions are never
// merged with each other.
func LinkOrphans(sessions []*PreSession, orphans []NormalizedLeg, window time.Duration) []NormalizedLeg {
	var unlinked []NormalizedLeg
	for _, orphan := range orphans {
		if orphan.Type != LegOperator {
			unlinked = append(unlinked, orphan)
			continue
		}
		match := bestMatch(sessions, orphan, window)
		if match == nil {
			unlinked = append(unlinked, orphan)
			continue
		}
		match.adopt(orphan)
	}
	return unlinked
}

// bestMatch scans pre-sessions in order and returns the candidate with the
// smallest rank, or nil when no session is a candidate. Negative deltas
// rank behind every in-window positive delta so an orphan prefers the
// session it follows over one it slightly precedes.
func bestMatch(sessions []*PreSession, orphan NormalizedLeg, window time.Duration) *PreSession {
	var (
		best     *PreSession
		bestRank time.Duration
	)
	for _, ps := range sessions {
		anchor := ps.Anchor()
		if orphan.Src != anchor.Src {
			continue
		}
		delta := orphan.CallTime.Sub(anchor.CallTime)
		if delta < -linkSkewTolerance || delta > window {
			continue
		}
		rank := delta
		if delta < 0 {
			rank = window - delta
		}
		if best == nil || rank < bestRank {
			best = ps
			bestRank = rank
		}
	}
	return best
}

package session

import "sort"

// BuildPreSessions partitions normalized legs into keyed pre-sessions and
// an orphan list. Legs with a resolved session key join (or create) the
// pre-session for that key; keyless legs become orphans.
//
// Both outputs are ordered by call time descending (newest first) to
// support recency-biased display. The ordering has no effect on grouping
// correctness.
func BuildPreSessions(legs []NormalizedLeg) ([]*PreSession, []NormalizedLeg) {
	sorted := make([]NormalizedLeg, len(legs))
	copy(sorted, legs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CallTime.After(sorted[j].CallTime)
	})

	var (
		sessions []*PreSession
		orphans  []NormalizedLeg
		byKey    = make(map[string]*PreSession)
	)
	for _, leg := range sorted {
		if leg.SessionKey == "" {
			orphans = append(orphans, leg)
			continue
		}
		ps, ok := byKey[leg.SessionKey]
		if !ok {
			ps = &PreSession{Key: leg.SessionKey}
			byKey[leg.SessionKey] = ps
			sessions = append(sessions, ps)
		}
		ps.Legs = append(ps.Legs, leg)
	}
	return sessions, orphans
}

package session

import (
	"path/filepath"
	"regexp"
)

// masterIDRe matches the numeric token the telephony system embeds at the
// end of recording filenames, immediately before the extension: a Unix
// timestamp with optional sub-second suffix, e.g. "-1700000000.1234.wav".
// Every leg of one real call carries the same token.
var masterIDRe = regexp.MustCompile(`-(\d{10,20}(?:\.\d{1,10})?)\.[A-Za-z0-9]+$`)

// MasterIDFromRecording extracts the master id embedded in a recording
// filename. Returns "" when the filename is missing or carries no token.
func MasterIDFromRecording(recordingFile string) string {
	if recordingFile == "" {
		return ""
	}
	m := masterIDRe.FindStringSubmatch(filepath.Base(recordingFile))
	if m == nil {
		return ""
	}
	return m[1]
}

// resolveSessionKey derives the grouping-key candidate for a leg.
//
// Priority: the recording master id is the strongest signal, since legs of
// one call share it. A queue leg without one still anchors a session under
// its own unique id — the queue entry is the visible start of the call.
// Operator and other legs without a recording match stay keyless and go
// through orphan linking instead.
func resolveSessionKey(leg NormalizedLeg) string {
	if leg.MasterID != "" {
		return leg.MasterID
	}
	if leg.Type == LegQueue {
		return leg.UniqueID
	}
	return ""
}

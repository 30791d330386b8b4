// Package session reconstructs logical call sessions from flat per-leg
// CDR rows. The telephony system emits one row per call hop (caller to
// queue, queue to operator), and the rows of one real-world call share no
// single reliable key. The engine classifies each leg, derives a grouping
// key from the recording filename where possible, and heuristically links
// the remainder by source number and temporal proximity.
//
// The engine is a pure in-memory batch pass: it performs no I/O, holds no
// process-wide state, and is safe to run concurrently as long as each run
// gets its own input slice.
package session

import (
	"regexp"
	"sort"
	"time"
)

// LegType classifies a leg by its destination.
type LegType int

const (
	// LegOther is any leg that is neither an operator nor a queue leg.
	LegOther LegType = iota
	// LegOperator is a leg dialing an operator extension.
	LegOperator
	// LegQueue is a leg entering a call queue.
	LegQueue
)

func (t LegType) String() string {
	switch t {
	case LegOperator:
		return "operator"
	case LegQueue:
		return "queue"
	default:
		return "other"
	}
}

// Asterisk-style dispositions as they appear in raw CDR rows.
const (
	DispositionAnswered = "ANSWERED"
	DispositionNoAnswer = "NO ANSWER"
	DispositionBusy     = "BUSY"
	DispositionFailed   = "FAILED"
)

// DefaultOrphanLinkWindow bounds how long after a call enters a queue an
// operator leg may still belong to it.
const DefaultOrphanLinkWindow = 30 * time.Second

// Rules is the compiled classification and linking configuration for one
// reconciliation run. It is immutable for the duration of a run.
type Rules struct {
	// OperatorPatterns match operator extension destinations. Checked
	// before QueueNumbers; classification is order-sensitive.
	OperatorPatterns []*regexp.Regexp
	// QueueNumbers is the set of literal queue destination numbers.
	QueueNumbers map[string]struct{}
	// OrphanLinkWindow overrides DefaultOrphanLinkWindow when positive.
	OrphanLinkWindow time.Duration
}

// Classify returns the leg type for a destination number. Operator
// patterns are checked first; queue membership second; everything else is
// LegOther.
func (r *Rules) Classify(dst string) LegType {
	for _, re := range r.OperatorPatterns {
		if re.MatchString(dst) {
			return LegOperator
		}
	}
	if _, ok := r.QueueNumbers[dst]; ok {
		return LegQueue
	}
	return LegOther
}

// Window returns the effective orphan-link window.
func (r *Rules) Window() time.Duration {
	if r.OrphanLinkWindow > 0 {
		return r.OrphanLinkWindow
	}
	return DefaultOrphanLinkWindow
}

// DownloadRef is an opaque pointer into the external audio store: a bare
// recording filename plus the call date needed to locate it. The engine
// never touches audio bytes.
type DownloadRef struct {
	Filename string    `json:"filename"`
	CallDate time.Time `json:"call_date"`
}

// IsZero reports whether the ref points at nothing.
func (r DownloadRef) IsZero() bool {
	return r.Filename == ""
}

// NormalizedLeg is one parsed CDR row. Immutable once built.
type NormalizedLeg struct {
	UniqueID      string      `json:"unique_id"`
	CallTime      time.Time   `json:"call_time"`
	CallerName    string      `json:"caller_name"`
	CallerNumber  string      `json:"caller_number"`
	Src           string      `json:"src"`
	Dst           string      `json:"dst"`
	DurationSec   int         `json:"duration_sec"`
	BillSec       int         `json:"bill_sec"`
	Disposition   string      `json:"disposition"`
	RecordingFile string      `json:"recording_file,omitempty"`
	Type          LegType     `json:"-"`
	MasterID      string      `json:"master_id,omitempty"`
	SessionKey    string      `json:"-"`
	Download      DownloadRef `json:"download,omitempty"`
}

// PreSession is a mutable grouping of legs sharing a session key. It is
// created by the builder and may gain legs from the orphan linker; two
// pre-sessions are never merged.
type PreSession struct {
	Key  string
	Legs []NormalizedLeg

	// anchor is resolved lazily on first lookup and kept for the rest of
	// the run, so legs adopted afterwards do not shift the reference
	// point other orphans are matched against.
	anchor    NormalizedLeg
	anchorSet bool
}

// Anchor returns the leg used as the temporal/source reference point for
// orphan matching: the first queue leg in chronological order, or the
// chronologically earliest leg when the session has no queue leg.
func (p *PreSession) Anchor() NormalizedLeg {
	if p.anchorSet {
		return p.anchor
	}
	legs := chronological(p.Legs)
	p.anchor = legs[0]
	for _, leg := range legs {
		if leg.Type == LegQueue {
			p.anchor = leg
			break
		}
	}
	p.anchorSet = true
	return p.anchor
}

// adopt appends an orphan leg. The cached anchor is deliberately left
// untouched: linking decisions already made remain stable within a run.
func (p *PreSession) adopt(leg NormalizedLeg) {
	p.Legs = append(p.Legs, leg)
}

// chronological returns a new slice of legs sorted ascending by call time.
// The sort is stable so equal timestamps keep input order.
func chronological(legs []NormalizedLeg) []NormalizedLeg {
	out := make([]NormalizedLeg, len(legs))
	copy(out, legs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CallTime.Before(out[j].CallTime)
	})
	return out
}

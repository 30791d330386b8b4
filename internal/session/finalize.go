package session

import (
	"fmt"
	"time"
)

// Status is the overall outcome of a logical session.
type Status string

const (
	StatusAnswered Status = "ANSWERED"
	StatusMissed   Status = "MISSED"
)

// LogicalSession is one reconstructed call: every leg belonging to one
// real-world phone conversation, with a deterministic outcome, a single
// attributable recording, and the operator who answered (if any).
type LogicalSession struct {
	// SessionID is a human-readable composite identifier intended for
	// stable external references such as log correlation. It is not the
	// grouping key.
	SessionID string `json:"session_id"`
	// MasterID is the grouping key the legs were collected under.
	MasterID     string    `json:"master_id"`
	CallerName   string    `json:"caller_name"`
	CallerNumber string    `json:"caller_number"`
	Src          string    `json:"src"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status"`
	// AnsweredBy is the destination of the answering operator leg; empty
	// for missed sessions.
	AnsweredBy string `json:"answered_by,omitempty"`
	// WaitTimeSec is the time from session start to the answered leg's
	// start. Omitted when it would be negative: the raw rows occasionally
	// log the answer before the computed session start, and clock skew is
	// not distinguishable from bad data.
	WaitTimeSec *int        `json:"wait_time_sec,omitempty"`
	BillSec     int         `json:"bill_sec"`
	Recording   DownloadRef `json:"recording,omitzero"`

	// OperatorAttempts lists every operator leg in chronological order,
	// answered or not. QueueLegs and OtherLegs keep the remaining legs
	// for audit.
	OperatorAttempts []NormalizedLeg `json:"operator_attempts"`
	QueueLegs        []NormalizedLeg `json:"queue_legs,omitempty"`
	OtherLegs        []NormalizedLeg `json:"other_legs,omitempty"`
}

// Finalize turns a fully populated pre-session into a logical session.
// It never fails: a pre-session always holds at least one leg, and every
// field has a defined zero value when data is missing.
func Finalize(ps *PreSession) LogicalSession {
	legs := chronological(ps.Legs)

	s := LogicalSession{
		MasterID:     ps.Key,
		CallerName:   legs[0].CallerName,
		CallerNumber: legs[0].CallerNumber,
		Src:          legs[0].Src,
		StartTime:    legs[0].CallTime,
	}

	for _, leg := range legs {
		switch leg.Type {
		case LegOperator:
			s.OperatorAttempts = append(s.OperatorAttempts, leg)
		case LegQueue:
			s.QueueLegs = append(s.QueueLegs, leg)
		default:
			s.OtherLegs = append(s.OtherLegs, leg)
		}
		end := leg.CallTime.Add(time.Duration(leg.DurationSec) * time.Second)
		if end.After(s.EndTime) {
			s.EndTime = end
		}
	}

	answered := answeredAttempt(s.OperatorAttempts)
	if answered != nil {
		s.Status = StatusAnswered
		s.AnsweredBy = answered.Dst
		s.BillSec = answered.BillSec
		s.Recording = answered.Download
		if wait := int(answered.CallTime.Sub(s.StartTime) / time.Second); wait >= 0 {
			s.WaitTimeSec = &wait
		}
	} else {
		s.Status = StatusMissed
		s.BillSec = 0
		s.Recording = missedRecording(s.MasterID, s.QueueLegs, s.OtherLegs)
	}

	s.SessionID = compositeID(s.Src, s.StartTime, s.MasterID)
	return s
}

// answeredAttempt returns the first chronological operator leg with an
// ANSWERED disposition, or nil.
func answeredAttempt(attempts []NormalizedLeg) *NormalizedLeg {
	for i := range attempts {
		if attempts[i].Disposition == DispositionAnswered {
			return &attempts[i]
		}
	}
	return nil
}

// missedRecording selects the representative recording for a missed
// session. A missed call's only audio evidence is typically the queue
// hold/IVR recording, so queue legs are searched first, preferring one
// whose own recording self-encodes the session's master id; other legs
// are the fallback.
func missedRecording(masterID string, queueLegs, otherLegs []NormalizedLeg) DownloadRef {
	if ref := recordingFrom(queueLegs, masterID); !ref.IsZero() {
		return ref
	}
	return recordingFrom(otherLegs, masterID)
}

// recordingFrom returns the first recording among legs whose master id
// matches, else the first recording at all.
func recordingFrom(legs []NormalizedLeg, masterID string) DownloadRef {
	for _, leg := range legs {
		if !leg.Download.IsZero() && leg.MasterID == masterID {
			return leg.Download
		}
	}
	for _, leg := range legs {
		if !leg.Download.IsZero() {
			return leg.Download
		}
	}
	return DownloadRef{}
}

// compositeID synthesizes the external session identifier from the source
// number, the normalized start time, and the master id.
func compositeID(src string, start time.Time, masterID string) string {
	return fmt.Sprintf("%s-%s-%s", src, start.UTC().Format("20060102150405"), masterID)
}

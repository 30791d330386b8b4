package models

import "time"

// RawLeg is one CDR row as the telephony system emitted it: a single
// directional call hop. UniqueID is unique per row but not across the legs
// of one logical call, which is why session reconstruction exists at all.
type RawLeg struct {
	ID            int64
	UniqueID      string
	CallTime      time.Time
	CallerID      string // combined caller-id field, loosely `"name" <number>`
	Src           string
	Dst           string
	DurationSec   int
	BillSec       int // invariant: BillSec <= DurationSec
	Disposition   string
	RecordingFile string
}

// ExpiredRecording identifies a recording cleared by the retention sweep
// so the audio file can be removed from disk.
type ExpiredRecording struct {
	Filename string
	CallTime time.Time
}

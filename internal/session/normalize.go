package session

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/callscope/callscope/internal/database/models"
)

// callerIDRe matches the combined caller-id field in its expected shape:
// an optional quoted name followed by a bracketed number.
var callerIDRe = regexp.MustCompile(`^(.*?)\s*<([^>]*)>\s*$`)

// numericRe matches a bare phone number, optionally with a leading plus.
var numericRe = regexp.MustCompile(`^\+?\d+$`)

// Normalize parses one raw CDR row into a structured leg. There is no
// error path: telephony logs are best-effort data, so malformed fields
// degrade to empty values instead of failing the run.
func Normalize(raw models.RawLeg, rules *Rules) NormalizedLeg {
	name, number := splitCallerID(raw.CallerID, raw.Src)

	leg := NormalizedLeg{
		UniqueID:      raw.UniqueID,
		CallTime:      raw.CallTime,
		CallerName:    name,
		CallerNumber:  number,
		Src:           raw.Src,
		Dst:           raw.Dst,
		DurationSec:   raw.DurationSec,
		BillSec:       raw.BillSec,
		Disposition:   raw.Disposition,
		RecordingFile: raw.RecordingFile,
		Type:          rules.Classify(raw.Dst),
		MasterID:      MasterIDFromRecording(raw.RecordingFile),
		Download:      downloadRef(raw.RecordingFile, raw.CallTime),
	}
	leg.SessionKey = resolveSessionKey(leg)
	return leg
}

// splitCallerID extracts the caller name and number from a loosely
// formatted `"name" <number>` field. Without brackets the number falls
// back to the raw source field, unless the name portion is itself purely
// numeric, in which case it is the number and the name is cleared.
func splitCallerID(callerID, src string) (name, number string) {
	raw := strings.TrimSpace(callerID)
	if m := callerIDRe.FindStringSubmatch(raw); m != nil {
		name = strings.Trim(strings.TrimSpace(m[1]), `"`)
		number = strings.TrimSpace(m[2])
		return name, number
	}

	name = strings.Trim(raw, `"`)
	number = src
	if name != "" && numericRe.MatchString(name) {
		number = name
		name = ""
	}
	return name, number
}

// downloadRef builds the opaque audio-store reference: the bare recording
// filename plus the call date. Either missing leaves the ref empty.
func downloadRef(recordingFile string, callTime time.Time) DownloadRef {
	if recordingFile == "" || callTime.IsZero() {
		return DownloadRef{}
	}
	return DownloadRef{
		Filename: filepath.Base(recordingFile),
		CallDate: callTime,
	}
}

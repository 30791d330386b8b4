package database

import (
	"context"
	"testing"
	"time"

	"github.com/callscope/callscope/internal/database/models"
)

func testLegSource(t *testing.T) LegSource {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLegSource(db)
}

func seedLeg(t *testing.T, legs LegSource, uniqueID string, callTime time.Time, dst, disposition, recording string) {
	t.Helper()
	err := legs.InsertLeg(context.Background(), &models.RawLeg{
		UniqueID:      uniqueID,
		CallTime:      callTime,
		CallerID:      `"Jane" <5551234>`,
		Src:           "5551234",
		Dst:           dst,
		DurationSec:   30,
		BillSec:       20,
		Disposition:   disposition,
		RecordingFile: recording,
	})
	if err != nil {
		t.Fatalf("failed to insert leg %s: %v", uniqueID, err)
	}
}

func TestInsertAndListLegs(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "1700000000.2", base.Add(8*time.Second), "101", "ANSWERED", "")
	seedLeg(t, legs, "1700000000.1", base, "001", "NO ANSWER", "q-1700000000.1.wav")

	got, err := legs.ListLegs(context.Background(), LegFilter{})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(got))
	}
	// Ordered by call time ascending regardless of insert order.
	if got[0].UniqueID != "1700000000.1" || got[1].UniqueID != "1700000000.2" {
		t.Errorf("unexpected order: %s, %s", got[0].UniqueID, got[1].UniqueID)
	}
	if got[0].CallerID != `"Jane" <5551234>` {
		t.Errorf("CallerID = %q", got[0].CallerID)
	}
}

func TestListLegsTimeFilter(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "early", base, "001", "NO ANSWER", "")
	seedLeg(t, legs, "mid", base.Add(time.Hour), "101", "ANSWERED", "")
	seedLeg(t, legs, "late", base.Add(2*time.Hour), "101", "ANSWERED", "")

	got, err := legs.ListLegs(context.Background(), LegFilter{
		Start: base.Add(30 * time.Minute),
		End:   base.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	if len(got) != 1 || got[0].UniqueID != "mid" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestListLegsUniqueIDFilter(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "a", base, "001", "NO ANSWER", "")
	seedLeg(t, legs, "b", base, "101", "ANSWERED", "")

	got, err := legs.ListLegs(context.Background(), LegFilter{UniqueID: "b"})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	if len(got) != 1 || got[0].UniqueID != "b" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestListLegsDispositionFilter(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "a", base, "001", "NO ANSWER", "")
	seedLeg(t, legs, "b", base, "101", "ANSWERED", "")
	seedLeg(t, legs, "c", base, "102", "BUSY", "")

	got, err := legs.ListLegs(context.Background(), LegFilter{
		Dispositions: []string{"ANSWERED", "BUSY"},
	})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(got))
	}
	for _, l := range got {
		if l.Disposition == "NO ANSWER" {
			t.Errorf("disposition filter leaked leg %s", l.UniqueID)
		}
	}
}

func TestCountByDisposition(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "a", base, "001", "NO ANSWER", "")
	seedLeg(t, legs, "b", base, "101", "ANSWERED", "")
	seedLeg(t, legs, "c", base, "102", "ANSWERED", "")

	counts, err := legs.CountByDisposition(context.Background())
	if err != nil {
		t.Fatalf("CountByDisposition: %v", err)
	}
	if counts["ANSWERED"] != 2 || counts["NO ANSWER"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestCountRecordings(t *testing.T) {
	legs := testLegSource(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedLeg(t, legs, "a", base, "001", "NO ANSWER", "q-1700000000.1.wav")
	seedLeg(t, legs, "b", base, "101", "ANSWERED", "")

	count, err := legs.CountRecordings(context.Background())
	if err != nil {
		t.Fatalf("CountRecordings: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestDeleteExpiredRecordings(t *testing.T) {
	legs := testLegSource(t)
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	seedLeg(t, legs, "old", old, "001", "NO ANSWER", "old-rec.wav")
	seedLeg(t, legs, "recent", recent, "101", "ANSWERED", "recent-rec.wav")

	expired, err := legs.DeleteExpiredRecordings(context.Background(), 30)
	if err != nil {
		t.Fatalf("DeleteExpiredRecordings: %v", err)
	}
	if len(expired) != 1 || expired[0].Filename != "old-rec.wav" {
		t.Fatalf("unexpected expired set: %+v", expired)
	}

	count, err := legs.CountRecordings(context.Background())
	if err != nil {
		t.Fatalf("CountRecordings: %v", err)
	}
	if count != 1 {
		t.Errorf("count after cleanup = %d, want 1", count)
	}

	// The leg itself survives, only the reference is cleared.
	got, err := legs.ListLegs(context.Background(), LegFilter{UniqueID: "old"})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	if len(got) != 1 || got[0].RecordingFile != "" {
		t.Errorf("expected old leg kept with cleared recording, got %+v", got)
	}
}

func TestDeleteExpiredRecordingsReturnsClearedSet(t *testing.T) {
	legs := testLegSource(t)
	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	seedLeg(t, legs, "ancient", cutoff.AddDate(0, 0, -15), "001", "NO ANSWER", "ancient.wav")
	seedLeg(t, legs, "edge", cutoff.Add(-time.Minute), "101", "ANSWERED", "edge.wav")
	seedLeg(t, legs, "fresh", cutoff.Add(time.Minute), "101", "ANSWERED", "fresh.wav")

	expired, err := legs.DeleteExpiredRecordings(context.Background(), 30)
	if err != nil {
		t.Fatalf("DeleteExpiredRecordings: %v", err)
	}

	returned := make(map[string]bool, len(expired))
	for _, e := range expired {
		returned[e.Filename] = true
	}

	// Every cleared reference must have been returned, or its audio file
	// would be stranded on disk with nothing left pointing at it.
	all, err := legs.ListLegs(context.Background(), LegFilter{})
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	for _, l := range all {
		cleared := l.RecordingFile == ""
		if cleared && !returned[l.UniqueID+".wav"] {
			t.Errorf("leg %s was cleared but not returned", l.UniqueID)
		}
		if !cleared && returned[l.RecordingFile] {
			t.Errorf("leg %s was returned but not cleared", l.UniqueID)
		}
	}
	if len(expired) != 2 || !returned["ancient.wav"] || !returned["edge.wav"] {
		t.Errorf("unexpected expired set: %+v", expired)
	}
}

func TestDeleteExpiredRecordingsNoneExpired(t *testing.T) {
	legs := testLegSource(t)
	seedLeg(t, legs, "a", time.Now().UTC(), "001", "NO ANSWER", "rec.wav")

	expired, err := legs.DeleteExpiredRecordings(context.Background(), 30)
	if err != nil {
		t.Fatalf("DeleteExpiredRecordings: %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("expected nothing expired, got %+v", expired)
	}
}

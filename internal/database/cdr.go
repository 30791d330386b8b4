package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/callscope/callscope/internal/database/models"
)

// legRepo implements LegSource against the embedded SQLite store.
type legRepo struct {
	db *DB
}

// NewLegSource creates a LegSource backed by the SQLite database.
func NewLegSource(db *DB) LegSource {
	return &legRepo{db: db}
}

const legColumns = `id, uniqueid, call_time, clid, src, dst, duration, billsec, disposition, recordingfile`

// ListLegs returns legs matching the filter, ordered by call time ascending.
func (r *legRepo) ListLegs(ctx context.Context, filter LegFilter) ([]models.RawLeg, error) {
	where := "1=1"
	args := []any{}

	if !filter.Start.IsZero() {
		where += " AND call_time >= ?"
		args = append(args, filter.Start)
	}
	if !filter.End.IsZero() {
		where += " AND call_time <= ?"
		args = append(args, filter.End)
	}
	if filter.UniqueID != "" {
		where += " AND uniqueid = ?"
		args = append(args, filter.UniqueID)
	}
	if len(filter.Dispositions) > 0 {
		where += " AND disposition IN (?" + strings.Repeat(", ?", len(filter.Dispositions)-1) + ")"
		for _, d := range filter.Dispositions {
			args = append(args, d)
		}
	}

	query := `SELECT ` + legColumns + ` FROM cdr_legs WHERE ` + where + ` ORDER BY call_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing legs: %v", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var legs []models.RawLeg
	for rows.Next() {
		var l models.RawLeg
		if err := rows.Scan(&l.ID, &l.UniqueID, &l.CallTime, &l.CallerID, &l.Src,
			&l.Dst, &l.DurationSec, &l.BillSec, &l.Disposition, &l.RecordingFile); err != nil {
			return nil, fmt.Errorf("%w: scanning leg row: %v", ErrSourceUnavailable, err)
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating leg rows: %v", ErrSourceUnavailable, err)
	}

	return legs, nil
}

// InsertLeg stores one raw leg row.
func (r *legRepo) InsertLeg(ctx context.Context, leg *models.RawLeg) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO cdr_legs (uniqueid, call_time, clid, src, dst, duration, billsec, disposition, recordingfile)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		leg.UniqueID, leg.CallTime, leg.CallerID, leg.Src, leg.Dst,
		leg.DurationSec, leg.BillSec, leg.Disposition, leg.RecordingFile,
	)
	if err != nil {
		return fmt.Errorf("inserting leg: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	leg.ID = id
	return nil
}

// CountByDisposition returns leg counts grouped by disposition.
func (r *legRepo) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM cdr_legs GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("%w: counting legs by disposition: %v", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disp string
		var n int64
		if err := rows.Scan(&disp, &n); err != nil {
			return nil, fmt.Errorf("%w: scanning disposition count: %v", ErrSourceUnavailable, err)
		}
		counts[disp] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating disposition counts: %v", ErrSourceUnavailable, err)
	}

	return counts, nil
}

// CountRecordings returns the number of legs with a non-empty recording.
func (r *legRepo) CountRecordings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cdr_legs WHERE recordingfile != ''`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting recordings: %v", ErrSourceUnavailable, err)
	}
	return count, nil
}

// DeleteExpiredRecordings clears the recordingfile field on legs whose
// call_time is older than the given number of days and returns the cleared
// references so callers can remove the audio files from disk. The cutoff is
// computed once so the SELECT and the UPDATE see the same boundary; a row
// must never be cleared without also being returned, or its file is never
// removed from disk.
func (r *legRepo) DeleteExpiredRecordings(ctx context.Context, days int) ([]models.ExpiredRecording, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := r.db.QueryContext(ctx,
		`SELECT recordingfile, call_time FROM cdr_legs
		 WHERE recordingfile != '' AND call_time < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying expired recordings: %w", err)
	}
	defer rows.Close()

	var expired []models.ExpiredRecording
	for rows.Next() {
		var e models.ExpiredRecording
		if err := rows.Scan(&e.Filename, &e.CallTime); err != nil {
			return nil, fmt.Errorf("scanning expired recording: %w", err)
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired recording rows: %w", err)
	}

	if len(expired) == 0 {
		return nil, nil
	}

	// Clear the reference, keep the leg itself.
	_, err = r.db.ExecContext(ctx,
		`UPDATE cdr_legs SET recordingfile = ''
		 WHERE recordingfile != '' AND call_time < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("clearing expired recording refs: %w", err)
	}

	return expired, nil
}

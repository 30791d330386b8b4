// Package pgsource provides a LegSource backed by an existing PostgreSQL
// CDR table, typically a mirror of an asteriskcdrdb-style schema populated
// by the telephony system itself. CallScope only reads from it during
// reconciliation runs; inserts exist for imports and tests.
package pgsource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/callscope/callscope/internal/database"
	"github.com/callscope/callscope/internal/database/models"
)

// tableNameRe restricts configurable table names to plain identifiers,
// since the table name is interpolated into query text.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store implements database.LegSource using PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

// New opens a PostgreSQL connection against the given CDR table.
func New(dsn, table string) (*Store, error) {
	if table == "" {
		table = "cdr"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid cdr table name %q", table)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("postgresql cdr source opened", "table", table)
	return &Store{db: db, table: table}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const legColumns = `id, uniqueid, calldate, clid, src, dst, duration, billsec, disposition, recordingfile`

// ListLegs returns legs matching the filter, ordered by call time ascending.
func (s *Store) ListLegs(ctx context.Context, filter database.LegFilter) ([]models.RawLeg, error) {
	where := "1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.Start.IsZero() {
		where += " AND calldate >= " + arg(filter.Start)
	}
	if !filter.End.IsZero() {
		where += " AND calldate <= " + arg(filter.End)
	}
	if filter.UniqueID != "" {
		where += " AND uniqueid = " + arg(filter.UniqueID)
	}
	if len(filter.Dispositions) > 0 {
		placeholders := make([]string, len(filter.Dispositions))
		for i, d := range filter.Dispositions {
			placeholders[i] = arg(d)
		}
		where += " AND disposition IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query := `SELECT ` + legColumns + ` FROM ` + s.table +
		` WHERE ` + where + ` ORDER BY calldate ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing legs: %v", database.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var legs []models.RawLeg
	for rows.Next() {
		var l models.RawLeg
		if err := rows.Scan(&l.ID, &l.UniqueID, &l.CallTime, &l.CallerID, &l.Src,
			&l.Dst, &l.DurationSec, &l.BillSec, &l.Disposition, &l.RecordingFile); err != nil {
			return nil, fmt.Errorf("%w: scanning leg row: %v", database.ErrSourceUnavailable, err)
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating leg rows: %v", database.ErrSourceUnavailable, err)
	}

	return legs, nil
}

// InsertLeg stores one raw leg row.
func (s *Store) InsertLeg(ctx context.Context, leg *models.RawLeg) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.table+` (uniqueid, calldate, clid, src, dst, duration, billsec, disposition, recordingfile)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		leg.UniqueID, leg.CallTime, leg.CallerID, leg.Src, leg.Dst,
		leg.DurationSec, leg.BillSec, leg.Disposition, leg.RecordingFile,
	).Scan(&leg.ID)
	if err != nil {
		return fmt.Errorf("inserting leg: %w", err)
	}
	return nil
}

// CountByDisposition returns leg counts grouped by disposition.
func (s *Store) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM `+s.table+` GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("%w: counting legs by disposition: %v", database.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disp string
		var n int64
		if err := rows.Scan(&disp, &n); err != nil {
			return nil, fmt.Errorf("%w: scanning disposition count: %v", database.ErrSourceUnavailable, err)
		}
		counts[disp] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating disposition counts: %v", database.ErrSourceUnavailable, err)
	}

	return counts, nil
}

// CountRecordings returns the number of legs with a non-empty recording.
func (s *Store) CountRecordings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+s.table+` WHERE recordingfile != ''`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting recordings: %v", database.ErrSourceUnavailable, err)
	}
	return count, nil
}

// DeleteExpiredRecordings clears recording references older than the given
// number of days and returns them for on-disk cleanup.
func (s *Store) DeleteExpiredRecordings(ctx context.Context, days int) ([]models.ExpiredRecording, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx,
		`SELECT recordingfile, calldate FROM `+s.table+`
		 WHERE recordingfile != '' AND calldate < $1`, cutoff)
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

	_, err = s.db.ExecContext(ctx,
		`UPDATE `+s.table+` SET recordingfile = ''
		 WHERE recordingfile != '' AND calldate < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("clearing expired recording refs: %w", err)
	}

	return expired, nil
}

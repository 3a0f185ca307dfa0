// internal/store/cleanup.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// identPattern rejects anything that is not a plain SQL identifier. Table and
// column names cannot be bound as parameters, so they are validated here and
// again against the cleanup job's allow-list.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CleanupStore deletes aged rows on behalf of the database cleanup job.
type CleanupStore struct {
	db *sql.DB
}

func NewCleanupStore(db *sql.DB) *CleanupStore {
	return &CleanupStore{db: db}
}

// DeleteOlderThan removes rows whose timestamp column precedes cutoff and
// returns the number deleted.
func (s *CleanupStore) DeleteOlderThan(ctx context.Context, table, timestampField string, cutoff time.Time) (int64, error) {
	if !identPattern.MatchString(table) {
		return 0, fmt.Errorf("cleanup: invalid table name %q", table)
	}
	if !identPattern.MatchString(timestampField) {
		return 0, fmt.Errorf("cleanup: invalid timestamp field %q", timestampField)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, table, timestampField)
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", table, err)
	}
	return n, nil
}

// CountOlderThan reports how many rows would be deleted, for dry runs.
func (s *CleanupStore) CountOlderThan(ctx context.Context, table, timestampField string, cutoff time.Time) (int64, error) {
	if !identPattern.MatchString(table) {
		return 0, fmt.Errorf("cleanup: invalid table name %q", table)
	}
	if !identPattern.MatchString(timestampField) {
		return 0, fmt.Errorf("cleanup: invalid timestamp field %q", timestampField)
	}
	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE %s < $1`, table, timestampField)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("cleanup count %s: %w", table, err)
	}
	return n, nil
}

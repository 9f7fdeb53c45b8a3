// Package sqlite provides a PartitionStore backed by an SQLite database.
//
// A single partitions table keyed by (partition_type, partition_key) holds every
// record. Compare-and-swap is an UPDATE guarded by the version column, so several
// processes can share one database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/arloliu/crawlsource/types"
)

// Store is an SQLite PartitionStore.
type Store struct {
	db *sql.DB
}

// Compile-time assertion that Store implements PartitionStore.
var _ types.PartitionStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
//
// Parameters:
//   - ctx: Context bounding the migration
//   - path: Database file path, or ":memory:" for a private in-memory database
//
// Returns:
//   - *Store: Ready-to-use store; Close releases the database
//   - error: Open or migration failure
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const insertSQL = `
INSERT INTO partitions (
    partition_type, partition_key, status, owner_id, owner_expiry, reopen_at,
    closed_count, progress_state, version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (partition_type, partition_key) DO NOTHING`

// InsertIfAbsent inserts rec with version 1.
func (s *Store) InsertIfAbsent(ctx context.Context, rec types.StoreRecord) (uint64, error) {
	res, err := s.db.ExecContext(ctx, insertSQL,
		string(rec.Type), rec.Key, string(rec.Status), rec.OwnerID,
		toMillis(rec.OwnerExpiry), toMillis(rec.ReopenAt), rec.ClosedCount, rec.ProgressState,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s/%s: %w", rec.Type, rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert %s/%s: %w", rec.Type, rec.Key, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrPartitionExists)
	}

	return 1, nil
}

const updateSQL = `
UPDATE partitions SET
    status = ?, owner_id = ?, owner_expiry = ?, reopen_at = ?, closed_count = ?,
    progress_state = ?, created_at = ?, updated_at = ?, version = version + 1
WHERE partition_type = ? AND partition_key = ? AND version = ?`

// ConditionalUpdate replaces the row if its version equals expectedVersion.
func (s *Store) ConditionalUpdate(ctx context.Context, rec types.StoreRecord, expectedVersion uint64) (uint64, error) {
	res, err := s.db.ExecContext(ctx, updateSQL,
		string(rec.Status), rec.OwnerID, toMillis(rec.OwnerExpiry), toMillis(rec.ReopenAt), rec.ClosedCount,
		rec.ProgressState, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		string(rec.Type), rec.Key, int64(expectedVersion), //nolint:gosec // versions stay far below MaxInt64
	)
	if err != nil {
		return 0, fmt.Errorf("update %s/%s: %w", rec.Type, rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s/%s: %w", rec.Type, rec.Key, err)
	}
	if n == 1 {
		return expectedVersion + 1, nil
	}

	// Distinguish a missing row from a stale version
	if _, err := s.Get(ctx, rec.Type, rec.Key); err != nil {
		return 0, err
	}

	return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrVersionConflict)
}

const selectColumns = `
SELECT partition_type, partition_key, status, owner_id, owner_expiry, reopen_at,
       closed_count, progress_state, version, created_at, updated_at
FROM partitions`

// ScanCandidates returns matching non-completed records of type t.
//
// COMPLETED rows are terminal and never candidates, so they are filtered in SQL.
func (s *Store) ScanCandidates(ctx context.Context, t types.PartitionType, pred func(types.StoreRecord) bool) ([]types.StoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE partition_type = ? AND status <> ? ORDER BY partition_key`,
		string(t), string(types.StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}
	defer rows.Close()

	var out []types.StoreRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}

	return out, nil
}

// Get loads a single record.
func (s *Store) Get(ctx context.Context, t types.PartitionType, key string) (types.StoreRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE partition_type = ? AND partition_key = ?`,
		string(t), key,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StoreRecord{}, fmt.Errorf("%s/%s: %w", t, key, types.ErrPartitionNotFound)
	}
	if err != nil {
		return types.StoreRecord{}, fmt.Errorf("get %s/%s: %w", t, key, err)
	}

	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (types.StoreRecord, error) {
	var (
		rec                                         types.StoreRecord
		typ, status                                 string
		ownerExpiry, reopenAt, createdAt, updatedAt int64
		version                                     int64
	)
	err := sc.Scan(&typ, &rec.Key, &status, &rec.OwnerID, &ownerExpiry, &reopenAt,
		&rec.ClosedCount, &rec.ProgressState, &version, &createdAt, &updatedAt)
	if err != nil {
		return types.StoreRecord{}, err
	}

	rec.Type = types.PartitionType(typ)
	rec.Status = types.PartitionStatus(status)
	rec.OwnerExpiry = fromMillis(ownerExpiry)
	rec.ReopenAt = fromMillis(reopenAt)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.Version = uint64(version) //nolint:gosec // version column is always positive

	return rec, nil
}

// toMillis stores the zero time as 0 so it round-trips to time.Time{}.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

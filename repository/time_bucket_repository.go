package repository

import (
	"context"
	"fmt"
	"time"

	"almengine/database"
	"almengine/models"
)

// TimeBucketRepository reads bucket definitions and maintains the
// per-run bucket master.
type TimeBucketRepository struct {
	q queryable
}

// NewTimeBucketRepository creates a new time bucket repository
func NewTimeBucketRepository(db *database.DB) *TimeBucketRepository {
	return &TimeBucketRepository{q: db.Pool}
}

// newTimeBucketRepositoryWithTx creates a new time bucket repository bound to a transaction
func newTimeBucketRepositoryWithTx(tx queryable) *TimeBucketRepository {
	return &TimeBucketRepository{q: tx}
}

// ListDefinitions returns the configured bucket ladder ordered by serial number
func (r *TimeBucketRepository) ListDefinitions(ctx context.Context) ([]models.BucketDefinition, error) {
	query := `
		SELECT serial_number, frequency, multiplier
		FROM time_buckets
		ORDER BY serial_number
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.BucketDefinition
	for rows.Next() {
		var def models.BucketDefinition
		if err := rows.Scan(&def.SerialNumber, &def.Frequency, &def.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan bucket definition: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bucket definitions: %w", err)
	}

	return defs, nil
}

// ReplaceForRun replaces the bucket master rows for one (process, snapshot)
// pair with the given set. The delete and the inserts must run in the
// same transaction as the aggregation that depends on them.
func (r *TimeBucketRepository) ReplaceForRun(ctx context.Context, processName string, snapshot time.Time, buckets []models.TimeBucket) error {
	deleteQuery := `
		DELETE FROM time_bucket_master
		WHERE process_name = $1 AND snapshot_date = $2
	`
	if _, err := r.q.Exec(ctx, deleteQuery, processName, snapshot); err != nil {
		return fmt.Errorf("failed to clear bucket master for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}

	insertQuery := `
		INSERT INTO time_bucket_master
		(process_name, snapshot_date, bucket_number, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, b := range buckets {
		if _, err := r.q.Exec(ctx, insertQuery,
			processName, snapshot, b.BucketNumber, b.StartDate, b.EndDate); err != nil {
			return fmt.Errorf("failed to insert bucket %d for %s/%s: %w",
				b.BucketNumber, processName, snapshot.Format("2006-01-02"), err)
		}
	}

	return nil
}

// ListForRun returns the bucket master rows for one (process, snapshot)
// pair ordered by bucket number.
func (r *TimeBucketRepository) ListForRun(ctx context.Context, processName string, snapshot time.Time) ([]models.TimeBucket, error) {
	query := `
		SELECT id, process_name, snapshot_date, bucket_number, start_date, end_date, created_at
		FROM time_bucket_master
		WHERE process_name = $1 AND snapshot_date = $2
		ORDER BY bucket_number
	`

	rows, err := r.q.Query(ctx, query, processName, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var buckets []models.TimeBucket
	for rows.Next() {
		var b models.TimeBucket
		err := rows.Scan(
			&b.ID,
			&b.ProcessName,
			&b.SnapshotDate,
			&b.BucketNumber,
			&b.StartDate,
			&b.EndDate,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate buckets: %w", err)
	}

	return buckets, nil
}

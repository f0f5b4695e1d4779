package repository

import (
	"context"
	"fmt"

	"github.com/pixelbay/mediahost/common/db"
)

// UsageRepository handles the durable per-day usage rollups. The fast
// counters in Redis drive enforcement; these rows survive counter expiry
// and feed billing and reporting.
type UsageRepository struct {
	db *db.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(database *db.DB) *UsageRepository {
	return &UsageRepository{db: database}
}

// Record upserts today's rollup row for a subject, adding the deltas to
// any existing values
func (r *UsageRepository) Record(ctx context.Context, subjectID string, requests, bytesServed, uploads int64) error {
	query := `
		INSERT INTO usage_records (api_key_id, day, requests, bytes_served, uploads)
		VALUES ($1, CURRENT_DATE, $2, $3, $4)
		ON CONFLICT (api_key_id, day) DO UPDATE SET
			requests = usage_records.requests + EXCLUDED.requests,
			bytes_served = usage_records.bytes_served + EXCLUDED.bytes_served,
			uploads = usage_records.uploads + EXCLUDED.uploads
	`

	if _, err := r.db.Exec(ctx, query, subjectID, requests, bytesServed, uploads); err != nil {
		return fmt.Errorf("failed to record usage for subject %s: %w", subjectID, err)
	}
	return nil
}

// DayUsage is one durable rollup row
type DayUsage struct {
	Day         string `json:"day"`
	Requests    int64  `json:"requests"`
	BytesServed int64  `json:"bytes_served"`
	Uploads     int64  `json:"uploads"`
}

// History returns the most recent rollup rows for a subject, newest first
func (r *UsageRepository) History(ctx context.Context, subjectID string, days int) ([]DayUsage, error) {
	query := `
		SELECT day::text, requests, bytes_served, uploads
		FROM usage_records
		WHERE api_key_id = $1
		ORDER BY day DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, subjectID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage history for subject %s: %w", subjectID, err)
	}
	defer rows.Close()

	var out []DayUsage
	for rows.Next() {
		var u DayUsage
		if err := rows.Scan(&u.Day, &u.Requests, &u.BytesServed, &u.Uploads); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage history: %w", err)
	}
	return out, nil
}

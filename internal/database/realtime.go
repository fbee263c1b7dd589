package database

import (
	"context"
	"time"
)

// UpsertRealtime inserts a row into the real-time set; a row with the
// same (location, timestamp) is overwritten and reactivated.
func (db *DB) UpsertRealtime(ctx context.Context, row *RealtimeRow) error {
	query := `
		INSERT INTO realtime_data (
			timestamp, location, latitude, longitude,
			aqi_value, aqi_category, traffic_level, is_peak_hour,
			processing_timestamp, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, TRUE)
		ON CONFLICT (location, timestamp) DO UPDATE
		SET latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    aqi_value = EXCLUDED.aqi_value,
		    aqi_category = EXCLUDED.aqi_category,
		    traffic_level = EXCLUDED.traffic_level,
		    is_peak_hour = EXCLUDED.is_peak_hour,
		    processing_timestamp = CURRENT_TIMESTAMP,
		    is_active = TRUE
	`

	_, err := db.ExecContext(
		ctx,
		query,
		row.Timestamp,
		row.Location,
		row.Latitude,
		row.Longitude,
		row.AQIValue,
		row.AQICategory,
		row.TrafficLevel,
		row.IsPeakHour,
	)
	return wrapErr("upsert realtime row", err)
}

// EvictStaleRealtime marks rows processed before cutoff inactive and
// returns how many were flipped. Physical deletion is left to
// PurgeInactiveRealtime.
func (db *DB) EvictStaleRealtime(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE realtime_data
		SET is_active = FALSE
		WHERE is_active = TRUE AND processing_timestamp < $1
	`

	res, err := db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, wrapErr("evict stale realtime rows", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("count evicted rows", err)
	}
	return count, nil
}

// PurgeInactiveRealtime physically deletes inactive rows processed
// before cutoff, returning the number removed.
func (db *DB) PurgeInactiveRealtime(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM realtime_data
		WHERE is_active = FALSE AND processing_timestamp < $1
	`

	res, err := db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, wrapErr("purge inactive realtime rows", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("count purged rows", err)
	}
	return count, nil
}

// FetchRecentRealtime returns active rows sampled at or after
// timestampCutoff and processed at or after processingCutoff, newest
// first.
func (db *DB) FetchRecentRealtime(ctx context.Context, timestampCutoff, processingCutoff time.Time) ([]*RealtimeRow, error) {
	query := `
		SELECT id, timestamp, location, latitude, longitude,
		       aqi_value, aqi_category, traffic_level, is_peak_hour,
		       processing_timestamp, is_active
		FROM realtime_data
		WHERE is_active = TRUE
		  AND timestamp >= $1
		  AND processing_timestamp >= $2
		ORDER BY timestamp DESC
	`

	rows, err := db.QueryContext(ctx, query, timestampCutoff, processingCutoff)
	if err != nil {
		return nil, wrapErr("query recent realtime rows", err)
	}
	defer rows.Close()

	var result []*RealtimeRow
	for rows.Next() {
		var row RealtimeRow
		if err := rows.Scan(
			&row.ID,
			&row.Timestamp,
			&row.Location,
			&row.Latitude,
			&row.Longitude,
			&row.AQIValue,
			&row.AQICategory,
			&row.TrafficLevel,
			&row.IsPeakHour,
			&row.ProcessingTimestamp,
			&row.IsActive,
		); err != nil {
			return nil, wrapErr("scan realtime row", err)
		}
		result = append(result, &row)
	}

	return result, rows.Err()
}

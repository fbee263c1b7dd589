package database

import (
	"context"
	"time"
)

// AppendRaw appends one sample to the raw log. Duplicates on
// (timestamp, location) are permitted; the batch layer aggregates
// whatever the log contains.
func (db *DB) AppendRaw(ctx context.Context, rec *RawRecord) error {
	query := `
		INSERT INTO raw_records (
			timestamp, location, latitude, longitude,
			aqi_value, aqi_category, traffic_level, is_peak_hour
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := db.QueryRowContext(
		ctx,
		query,
		rec.Timestamp,
		rec.Location,
		rec.Latitude,
		rec.Longitude,
		rec.AQIValue,
		rec.AQICategory,
		rec.TrafficLevel,
		rec.IsPeakHour,
	).Scan(&rec.ID)
	return wrapErr("append raw record", err)
}

// ScanRawWindow streams the raw rows with timestamp in [from, to)
// through fn, one at a time, so a window is never materialized whole.
func (db *DB) ScanRawWindow(ctx context.Context, from, to time.Time, fn func(*RawRecord) error) error {
	query := `
		SELECT id, timestamp, location, latitude, longitude,
		       aqi_value, aqi_category, traffic_level, is_peak_hour, ingested_at
		FROM raw_records
		WHERE timestamp >= $1 AND timestamp < $2
	`

	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return wrapErr("query raw window", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec RawRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Location,
			&rec.Latitude,
			&rec.Longitude,
			&rec.AQIValue,
			&rec.AQICategory,
			&rec.TrafficLevel,
			&rec.IsPeakHour,
			&rec.IngestedAt,
		); err != nil {
			return wrapErr("scan raw record", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}

	return rows.Err()
}

// FetchLatestRawPerLocation returns the newest raw row for every
// location, the last-resort serving tier.
func (db *DB) FetchLatestRawPerLocation(ctx context.Context) ([]*RawRecord, error) {
	query := `
		SELECT DISTINCT ON (location)
		       id, timestamp, location, latitude, longitude,
		       aqi_value, aqi_category, traffic_level, is_peak_hour, ingested_at
		FROM raw_records
		ORDER BY location, timestamp DESC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("query latest raw rows", err)
	}
	defer rows.Close()

	var records []*RawRecord
	for rows.Next() {
		var rec RawRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Location,
			&rec.Latitude,
			&rec.Longitude,
			&rec.AQIValue,
			&rec.AQICategory,
			&rec.TrafficLevel,
			&rec.IsPeakHour,
			&rec.IngestedAt,
		); err != nil {
			return nil, wrapErr("scan raw record", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

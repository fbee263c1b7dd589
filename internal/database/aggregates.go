package database

import (
	"context"
	"database/sql"
	"time"
)

const dateLayout = "2006-01-02"

// UpsertHourlyIncrement folds one sample into the hourly aggregation
// for (date, hour, location) in a single atomic statement. On conflict
// each present metric's average advances by (avg*n + x) / (n+1) against
// its own count; an absent metric leaves its average and count alone.
// total_records grows by deltaCount.
func (db *DB) UpsertHourlyIncrement(ctx context.Context, date string, hour int, location string, traffic, aqi *int, deltaCount int, isPeak bool) error {
	query := `
		INSERT INTO hourly_aggregations AS h (
			date, hour, location,
			avg_traffic_level, traffic_count,
			avg_aqi_value, aqi_count,
			total_records, is_peak_hour, updated_at
		) VALUES (
			$1, $2, $3,
			$4, CASE WHEN $4 IS NULL THEN 0 ELSE 1 END,
			$5, CASE WHEN $5 IS NULL THEN 0 ELSE 1 END,
			$6, $7, CURRENT_TIMESTAMP
		)
		ON CONFLICT (date, hour, location) DO UPDATE
		SET avg_traffic_level = CASE
		        WHEN EXCLUDED.traffic_count = 0 THEN h.avg_traffic_level
		        WHEN h.traffic_count = 0 THEN EXCLUDED.avg_traffic_level
		        ELSE (h.avg_traffic_level * h.traffic_count + EXCLUDED.avg_traffic_level)
		             / (h.traffic_count + 1)
		    END,
		    traffic_count = h.traffic_count + EXCLUDED.traffic_count,
		    avg_aqi_value = CASE
		        WHEN EXCLUDED.aqi_count = 0 THEN h.avg_aqi_value
		        WHEN h.aqi_count = 0 THEN EXCLUDED.avg_aqi_value
		        ELSE (h.avg_aqi_value * h.aqi_count + EXCLUDED.avg_aqi_value)
		             / (h.aqi_count + 1)
		    END,
		    aqi_count = h.aqi_count + EXCLUDED.aqi_count,
		    total_records = h.total_records + EXCLUDED.total_records,
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.ExecContext(ctx, query, date, hour, location, traffic, aqi, deltaCount, isPeak)
	return wrapErr("upsert hourly increment", err)
}

// ReplaceHourly overwrites the hourly aggregation for the row's
// (date, hour, location) with recomputed authoritative values.
func (db *DB) ReplaceHourly(ctx context.Context, row *HourlyRow) error {
	query := `
		INSERT INTO hourly_aggregations (
			date, hour, location,
			avg_traffic_level, traffic_count,
			avg_aqi_value, aqi_count,
			total_records, is_peak_hour, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (date, hour, location) DO UPDATE
		SET avg_traffic_level = EXCLUDED.avg_traffic_level,
		    traffic_count = EXCLUDED.traffic_count,
		    avg_aqi_value = EXCLUDED.avg_aqi_value,
		    aqi_count = EXCLUDED.aqi_count,
		    total_records = EXCLUDED.total_records,
		    is_peak_hour = EXCLUDED.is_peak_hour,
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.ExecContext(
		ctx,
		query,
		row.Date,
		row.Hour,
		row.Location,
		row.AvgTrafficLevel,
		row.TrafficCount,
		row.AvgAQIValue,
		row.AQICount,
		row.TotalRecords,
		row.IsPeakHour,
	)
	return wrapErr("replace hourly aggregation", err)
}

func scanHourlyRow(rows *sql.Rows, row *HourlyRow) error {
	var date time.Time
	if err := rows.Scan(
		&row.ID,
		&date,
		&row.Hour,
		&row.Location,
		&row.AvgTrafficLevel,
		&row.TrafficCount,
		&row.AvgAQIValue,
		&row.AQICount,
		&row.TotalRecords,
		&row.IsPeakHour,
		&row.UpdatedAt,
	); err != nil {
		return err
	}
	row.Date = date.Format(dateLayout)
	return nil
}

// FetchHourly returns all hourly aggregations on or after sinceDate,
// sorted by (location, date, hour).
func (db *DB) FetchHourly(ctx context.Context, sinceDate string) ([]*HourlyRow, error) {
	query := `
		SELECT id, date, hour, location,
		       avg_traffic_level, traffic_count,
		       avg_aqi_value, aqi_count,
		       total_records, is_peak_hour, updated_at
		FROM hourly_aggregations
		WHERE date >= $1
		ORDER BY location, date, hour
	`

	rows, err := db.QueryContext(ctx, query, sinceDate)
	if err != nil {
		return nil, wrapErr("query hourly aggregations", err)
	}
	defer rows.Close()

	var result []*HourlyRow
	for rows.Next() {
		var row HourlyRow
		if err := scanHourlyRow(rows, &row); err != nil {
			return nil, wrapErr("scan hourly aggregation", err)
		}
		result = append(result, &row)
	}

	return result, rows.Err()
}

// FetchHourlyForDate returns the hourly aggregations of one local date
// in (hour, location) order.
func (db *DB) FetchHourlyForDate(ctx context.Context, date string) ([]*HourlyRow, error) {
	query := `
		SELECT id, date, hour, location,
		       avg_traffic_level, traffic_count,
		       avg_aqi_value, aqi_count,
		       total_records, is_peak_hour, updated_at
		FROM hourly_aggregations
		WHERE date = $1
		ORDER BY hour, location
	`

	rows, err := db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, wrapErr("query hourly aggregations for date", err)
	}
	defer rows.Close()

	var result []*HourlyRow
	for rows.Next() {
		var row HourlyRow
		if err := scanHourlyRow(rows, &row); err != nil {
			return nil, wrapErr("scan hourly aggregation", err)
		}
		result = append(result, &row)
	}

	return result, rows.Err()
}

// FetchLatestHourlyPerLocation returns the newest hourly aggregation
// per location with coordinates joined from the locations table.
func (db *DB) FetchLatestHourlyPerLocation(ctx context.Context) ([]*HourlyLatest, error) {
	query := `
		SELECT DISTINCT ON (h.location)
		       h.id, h.date, h.hour, h.location,
		       h.avg_traffic_level, h.traffic_count,
		       h.avg_aqi_value, h.aqi_count,
		       h.total_records, h.is_peak_hour, h.updated_at,
		       l.latitude, l.longitude
		FROM hourly_aggregations h
		LEFT JOIN locations l ON l.name = h.location
		ORDER BY h.location, h.date DESC, h.hour DESC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("query latest hourly aggregations", err)
	}
	defer rows.Close()

	var result []*HourlyLatest
	for rows.Next() {
		var row HourlyLatest
		var date time.Time
		if err := rows.Scan(
			&row.ID,
			&date,
			&row.Hour,
			&row.Location,
			&row.AvgTrafficLevel,
			&row.TrafficCount,
			&row.AvgAQIValue,
			&row.AQICount,
			&row.TotalRecords,
			&row.IsPeakHour,
			&row.UpdatedAt,
			&row.Latitude,
			&row.Longitude,
		); err != nil {
			return nil, wrapErr("scan latest hourly aggregation", err)
		}
		row.Date = date.Format(dateLayout)
		result = append(result, &row)
	}

	return result, rows.Err()
}

// WriteDaily upserts one whole-day aggregation keyed by (date, location).
func (db *DB) WriteDaily(ctx context.Context, row *DailyRow) error {
	query := `
		INSERT INTO daily_aggregations (
			date, hour, location,
			avg_aqi, min_aqi, max_aqi,
			avg_traffic, min_traffic, max_traffic,
			data_points_count, is_peak_hour
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date, location) WHERE hour IS NULL DO UPDATE
		SET avg_aqi = EXCLUDED.avg_aqi,
		    min_aqi = EXCLUDED.min_aqi,
		    max_aqi = EXCLUDED.max_aqi,
		    avg_traffic = EXCLUDED.avg_traffic,
		    min_traffic = EXCLUDED.min_traffic,
		    max_traffic = EXCLUDED.max_traffic,
		    data_points_count = EXCLUDED.data_points_count,
		    is_peak_hour = EXCLUDED.is_peak_hour
	`

	_, err := db.ExecContext(
		ctx,
		query,
		row.Date,
		row.Hour,
		row.Location,
		row.AvgAQI,
		row.MinAQI,
		row.MaxAQI,
		row.AvgTraffic,
		row.MinTraffic,
		row.MaxTraffic,
		row.DataPointsCount,
		row.IsPeakHour,
	)
	return wrapErr("write daily aggregation", err)
}

// WritePeak upserts the peak-hour summary for its analysis date.
func (db *DB) WritePeak(ctx context.Context, row *PeakSummary) error {
	query := `
		INSERT INTO peak_hours (
			analysis_date,
			peak_aqi_hour, peak_aqi_value, peak_aqi_location,
			peak_traffic_hour, peak_traffic_value, peak_traffic_location
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (analysis_date) DO UPDATE
		SET peak_aqi_hour = EXCLUDED.peak_aqi_hour,
		    peak_aqi_value = EXCLUDED.peak_aqi_value,
		    peak_aqi_location = EXCLUDED.peak_aqi_location,
		    peak_traffic_hour = EXCLUDED.peak_traffic_hour,
		    peak_traffic_value = EXCLUDED.peak_traffic_value,
		    peak_traffic_location = EXCLUDED.peak_traffic_location
	`

	_, err := db.ExecContext(
		ctx,
		query,
		row.AnalysisDate,
		row.PeakAQIHour,
		row.PeakAQIValue,
		row.PeakAQILocation,
		row.PeakTrafficHour,
		row.PeakTrafficValue,
		row.PeakTrafficLocation,
	)
	return wrapErr("write peak summary", err)
}

// FetchPeakSummary returns the peak-hour summary for a date, or nil
// when none has been computed yet.
func (db *DB) FetchPeakSummary(ctx context.Context, date string) (*PeakSummary, error) {
	query := `
		SELECT id, analysis_date,
		       peak_aqi_hour, peak_aqi_value, peak_aqi_location,
		       peak_traffic_hour, peak_traffic_value, peak_traffic_location,
		       created_at
		FROM peak_hours
		WHERE analysis_date = $1
	`

	var row PeakSummary
	var analysisDate time.Time
	err := db.QueryRowContext(ctx, query, date).Scan(
		&row.ID,
		&analysisDate,
		&row.PeakAQIHour,
		&row.PeakAQIValue,
		&row.PeakAQILocation,
		&row.PeakTrafficHour,
		&row.PeakTrafficValue,
		&row.PeakTrafficLocation,
		&row.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("query peak summary", err)
	}

	row.AnalysisDate = analysisDate.Format(dateLayout)
	return &row, nil
}

package batch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
)

// HourlyStore is the store surface of the hourly rebuild.
type HourlyStore interface {
	ScanRawWindow(ctx context.Context, from, to time.Time, fn func(*database.RawRecord) error) error
	ReplaceHourly(ctx context.Context, row *database.HourlyRow) error
}

// HourlyJob rebuilds hourly aggregations from the raw log. Its values
// overwrite whatever the speed layer accumulated for the same hour.
type HourlyJob struct {
	store     HourlyStore
	localizer *localtime.Localizer
}

// NewHourlyJob creates a new hourly rebuild job.
func NewHourlyJob(store HourlyStore, localizer *localtime.Localizer) *HourlyJob {
	return &HourlyJob{store: store, localizer: localizer}
}

// RunPrevious rebuilds the previous completed local hour.
func (j *HourlyJob) RunPrevious(ctx context.Context, now time.Time) error {
	date, hour, from, to := j.localizer.PreviousHourWindow(now)
	return j.Rebuild(ctx, date, hour, from, to)
}

// Rebuild streams the raw rows of one hour window through per-location
// accumulators and overwrites the hourly rows.
func (j *HourlyJob) Rebuild(ctx context.Context, date string, hour int, from, to time.Time) error {
	fmt.Printf("Running hourly rebuild for %s hour %02d\n", date, hour)

	accumulators := make(map[string]*windowAccumulator)
	err := j.store.ScanRawWindow(ctx, from, to, func(rec *database.RawRecord) error {
		acc := accumulators[rec.Location]
		if acc == nil {
			acc = &windowAccumulator{}
			accumulators[rec.Location] = acc
		}
		acc.addSample(rec.TrafficLevel, rec.AQIValue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan raw window: %w", err)
	}

	locations := make([]string, 0, len(accumulators))
	for location := range accumulators {
		locations = append(locations, location)
	}
	sort.Strings(locations)

	isPeak := j.localizer.IsPeakClockHour(hour)
	for _, location := range locations {
		acc := accumulators[location]
		row := &database.HourlyRow{
			Date:            date,
			Hour:            hour,
			Location:        location,
			AvgTrafficLevel: acc.traffic.avg(),
			TrafficCount:    acc.traffic.count,
			AvgAQIValue:     acc.aqi.avg(),
			AQICount:        acc.aqi.count,
			TotalRecords:    acc.records,
			IsPeakHour:      isPeak,
		}
		if err := j.store.ReplaceHourly(ctx, row); err != nil {
			return fmt.Errorf("failed to replace hourly row for %s: %w", location, err)
		}
	}

	fmt.Printf("Hourly rebuild completed: %d locations processed\n", len(locations))
	return nil
}

package batch

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
)

// DailyStore is the store surface of the daily rollup.
type DailyStore interface {
	ScanRawWindow(ctx context.Context, from, to time.Time, fn func(*database.RawRecord) error) error
	WriteDaily(ctx context.Context, row *database.DailyRow) error
	PurgeInactiveRealtime(ctx context.Context, cutoff time.Time) (int64, error)
}

// DailyJob writes one whole-day aggregation per location from the raw
// log and purges long-inactive real-time rows.
type DailyJob struct {
	store     DailyStore
	localizer *localtime.Localizer
}

// NewDailyJob creates a new daily rollup job.
func NewDailyJob(store DailyStore, localizer *localtime.Localizer) *DailyJob {
	return &DailyJob{store: store, localizer: localizer}
}

// RunPrevious rolls up the previous local calendar day.
func (j *DailyJob) RunPrevious(ctx context.Context, now time.Time) error {
	date, from, to := j.localizer.PreviousDayWindow(now)
	if err := j.Rollup(ctx, date, from, to); err != nil {
		return err
	}

	// Inactive real-time rows older than a day are of no further use to
	// any serving tier.
	purged, err := j.store.PurgeInactiveRealtime(ctx, now.UTC().Add(-24*time.Hour))
	if err != nil {
		log.Printf("Failed to purge inactive realtime rows: %v", err)
	} else if purged > 0 {
		fmt.Printf("Purged %d inactive realtime rows\n", purged)
	}
	return nil
}

// Rollup streams the raw rows of one day window through per-location
// accumulators and upserts the whole-day rows.
func (j *DailyJob) Rollup(ctx context.Context, date string, from, to time.Time) error {
	fmt.Printf("Running daily rollup for %s\n", date)

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

	for _, location := range locations {
		acc := accumulators[location]
		row := &database.DailyRow{
			Date:            date,
			Hour:            nil, // whole-day row
			Location:        location,
			AvgAQI:          acc.aqi.avg(),
			MinAQI:          acc.aqi.minValue(),
			MaxAQI:          acc.aqi.maxValue(),
			AvgTraffic:      acc.traffic.avg(),
			MinTraffic:      acc.traffic.minValue(),
			MaxTraffic:      acc.traffic.maxValue(),
			DataPointsCount: acc.records,
		}
		if err := j.store.WriteDaily(ctx, row); err != nil {
			return fmt.Errorf("failed to write daily row for %s: %w", location, err)
		}
	}

	fmt.Printf("Daily rollup completed: %d locations processed\n", len(locations))
	return nil
}

package batch

import (
	"context"
	"fmt"
	"time"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
)

// PeakStore is the store surface of the peak-hour analysis.
type PeakStore interface {
	FetchHourlyForDate(ctx context.Context, date string) ([]*database.HourlyRow, error)
	WritePeak(ctx context.Context, row *database.PeakSummary) error
}

// PeakJob finds the worst hour and location of a day for each metric
// and writes the summary row.
type PeakJob struct {
	store     PeakStore
	localizer *localtime.Localizer
}

// NewPeakJob creates a new peak-hour analysis job.
func NewPeakJob(store PeakStore, localizer *localtime.Localizer) *PeakJob {
	return &PeakJob{store: store, localizer: localizer}
}

// RunPrevious analyzes the previous local calendar day.
func (j *PeakJob) RunPrevious(ctx context.Context, now time.Time) error {
	date, _, _ := j.localizer.PreviousDayWindow(now)
	return j.Analyze(ctx, date)
}

// Analyze reads the hourly aggregations of one date and writes its
// peak summary. Ties resolve to the first row in (hour, location)
// order, which is the order the store returns.
func (j *PeakJob) Analyze(ctx context.Context, date string) error {
	fmt.Printf("Running peak-hour analysis for %s\n", date)

	rows, err := j.store.FetchHourlyForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to fetch hourly rows: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("Peak-hour analysis skipped: no hourly rows for %s\n", date)
		return nil
	}

	summary := &database.PeakSummary{AnalysisDate: date}
	for _, row := range rows {
		if row.AvgAQIValue != nil {
			if summary.PeakAQIValue == nil || *row.AvgAQIValue > *summary.PeakAQIValue {
				value := *row.AvgAQIValue
				hour := row.Hour
				location := row.Location
				summary.PeakAQIValue = &value
				summary.PeakAQIHour = &hour
				summary.PeakAQILocation = &location
			}
		}
		if row.AvgTrafficLevel != nil {
			if summary.PeakTrafficValue == nil || *row.AvgTrafficLevel > *summary.PeakTrafficValue {
				value := *row.AvgTrafficLevel
				hour := row.Hour
				location := row.Location
				summary.PeakTrafficValue = &value
				summary.PeakTrafficHour = &hour
				summary.PeakTrafficLocation = &location
			}
		}
	}

	if err := j.store.WritePeak(ctx, summary); err != nil {
		return fmt.Errorf("failed to write peak summary: %w", err)
	}

	fmt.Printf("Peak-hour analysis completed for %s\n", date)
	return nil
}

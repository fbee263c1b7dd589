package speed

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/protocol"
)

// Store is the write surface the processor needs: the real-time upsert
// and the atomic hourly increment.
type Store interface {
	UpsertRealtime(ctx context.Context, row *database.RealtimeRow) error
	UpsertHourlyIncrement(ctx context.Context, date string, hour int, location string, traffic, aqi *int, deltaCount int, isPeak bool) error
}

// DeliveryGuard decides whether a (location, timestamp) sample is seen
// for the first time, so redeliveries never double-increment the
// hourly counts.
type DeliveryGuard interface {
	FirstDelivery(ctx context.Context, location string, timestamp time.Time) (bool, error)
	Release(ctx context.Context, location string, timestamp time.Time) error
}

// Processor folds bus records into the real-time set and the hourly
// aggregations.
type Processor struct {
	store     Store
	guard     DeliveryGuard
	localizer *localtime.Localizer

	processed  atomic.Int64
	duplicates atomic.Int64
	malformed  atomic.Int64
}

// NewProcessor creates a new speed-layer processor.
func NewProcessor(store Store, guard DeliveryGuard, localizer *localtime.Localizer) *Processor {
	return &Processor{
		store:     store,
		guard:     guard,
		localizer: localizer,
	}
}

// Handle processes one consumed record. A nil return acknowledges the
// record; an error leaves it unacknowledged for redelivery. Malformed
// records are acknowledged and dropped.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	sample, err := protocol.DecodeLocationSample(msg.Value)
	if err != nil {
		p.malformed.Add(1)
		log.Printf("Dropping malformed record (partition=%d, offset=%d): %v",
			msg.Partition, msg.Offset, err)
		return nil
	}

	row := &database.RealtimeRow{
		Timestamp:    sample.Timestamp,
		Location:     sample.Location,
		Latitude:     sample.Latitude,
		Longitude:    sample.Longitude,
		AQIValue:     sample.AQIValue,
		TrafficLevel: sample.TrafficLevel,
		IsPeakHour:   sample.IsPeakHour,
	}
	if sample.AQICategory != nil {
		category := string(*sample.AQICategory)
		row.AQICategory = &category
	}

	if err := p.store.UpsertRealtime(ctx, row); err != nil {
		return err
	}

	first, err := p.guard.FirstDelivery(ctx, sample.Location, sample.Timestamp)
	if err != nil {
		return err
	}
	if !first {
		// Redelivery: the real-time row was refreshed above, the hourly
		// row already counted this sample.
		p.duplicates.Add(1)
		return nil
	}

	date, hour := p.localizer.DateHour(sample.Timestamp)
	isPeak := p.localizer.IsPeakClockHour(hour)
	err = p.store.UpsertHourlyIncrement(ctx, date, hour, sample.Location,
		sample.TrafficLevel, sample.AQIValue, 1, isPeak)
	if err != nil {
		// Give the marker back so the redelivery can count the sample.
		if releaseErr := p.guard.Release(ctx, sample.Location, sample.Timestamp); releaseErr != nil {
			log.Printf("Failed to release sample marker for %s: %v", sample.Location, releaseErr)
		}
		return err
	}

	p.processed.Add(1)
	return nil
}

// Stats is a snapshot of the processor counters.
type Stats struct {
	Processed  int64
	Duplicates int64
	Malformed  int64
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Duplicates: p.duplicates.Load(),
		Malformed:  p.malformed.Load(),
	}
}

package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/protocol"
	"traffic-aqi-pipeline/internal/queue"
	"traffic-aqi-pipeline/internal/retry"
	"traffic-aqi-pipeline/internal/upstream"
)

const (
	// upstreamTries is the first call plus two retries on transient
	// failures; after that the metric is absent for the cycle.
	upstreamTries = 3
	// publishTries caps bus publish attempts before the sample is
	// dropped from the speed path (the raw log still gets it).
	publishTries = 3
	// rawTries caps raw log append attempts before the sample is lost.
	rawTries = 3
)

// Bus publishes encoded samples keyed by location.
type Bus interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// RawStore appends samples to the raw log.
type RawStore interface {
	AppendRaw(ctx context.Context, rec *database.RawRecord) error
}

// Poller drives one ingestion cycle per tick: it polls both upstream
// feeds for every monitored site, merges the results into samples, and
// hands them to the bus and the raw log.
type Poller struct {
	sites     []upstream.Site
	client    upstream.Client
	bus       Bus
	store     RawStore
	localizer *localtime.Localizer

	timeout     time.Duration
	concurrency int
	retryBase   time.Duration
	now         func() time.Time

	cycles       atomic.Int64
	emitted      atomic.Int64
	skipped      atomic.Int64
	publishDrops atomic.Int64
	rawDrops     atomic.Int64
	failures     map[string]*atomic.Int64 // key: location name
}

// NewPoller creates a new ingestion poller for a static set of sites.
func NewPoller(
	sites []upstream.Site,
	client upstream.Client,
	bus Bus,
	store RawStore,
	localizer *localtime.Localizer,
	timeout time.Duration,
	concurrency int,
) *Poller {
	failures := make(map[string]*atomic.Int64, len(sites))
	for _, site := range sites {
		failures[site.Name] = &atomic.Int64{}
	}

	return &Poller{
		sites:       sites,
		client:      client,
		bus:         bus,
		store:       store,
		localizer:   localizer,
		timeout:     timeout,
		concurrency: concurrency,
		retryBase:   500 * time.Millisecond,
		now:         time.Now,
		failures:    failures,
	}
}

// feedResults holds the two upstream outcomes for one site in a cycle.
type feedResults struct {
	traffic upstream.Result
	aqi     upstream.Result
}

// Cycle runs one ingestion pass over every monitored site. The caller
// guarantees cycles never overlap.
func (p *Poller) Cycle(ctx context.Context) {
	cycleID := uuid.New().String()[:8]
	start := p.now()
	sampleTime := start.UTC().Truncate(time.Millisecond)

	results := p.fetchAll(ctx)

	emitted := 0
	for i, site := range p.sites {
		if ctx.Err() != nil {
			return
		}
		if p.emit(ctx, site, sampleTime, results[i]) {
			emitted++
		}
	}

	p.cycles.Add(1)
	log.Printf("Cycle %s: emitted %d/%d samples in %v",
		cycleID, emitted, len(p.sites), time.Since(start).Round(time.Millisecond))
}

// fetchAll queries both feeds for every site, bounded by the fan-out
// semaphore. Each feed call gets its own worker so one slow feed never
// delays the other.
func (p *Poller) fetchAll(ctx context.Context) []feedResults {
	sem := make(chan struct{}, p.concurrency)
	results := make([]feedResults, len(p.sites))

	var wg sync.WaitGroup
	for i, site := range p.sites {
		wg.Add(2)

		go func(i int, site upstream.Site) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i].traffic = p.fetchWithRetry(ctx, site, p.client.FetchTraffic)
		}(i, site)

		go func(i int, site upstream.Site) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i].aqi = p.fetchWithRetry(ctx, site, p.client.FetchAQI)
		}(i, site)
	}
	wg.Wait()

	return results
}

// fetchWithRetry calls one feed with a per-call deadline, retrying
// transient failures up to the cycle's retry cap.
func (p *Poller) fetchWithRetry(
	ctx context.Context,
	site upstream.Site,
	fetch func(context.Context, upstream.Site) upstream.Result,
) upstream.Result {
	var result upstream.Result
	for attempt := 0; attempt < upstreamTries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		result = fetch(callCtx, site)
		cancel()

		if result.Status != upstream.StatusTransient {
			return result
		}
		if attempt < upstreamTries-1 {
			if !retry.Sleep(ctx, retry.Backoff(p.retryBase, attempt)) {
				return result
			}
		}
	}
	return result
}

// emit merges one site's feed results into a sample and hands it to the
// bus and the raw log. It reports whether a sample was produced.
func (p *Poller) emit(ctx context.Context, site upstream.Site, sampleTime time.Time, results feedResults) bool {
	sample := &protocol.LocationSample{
		Timestamp:  sampleTime,
		Location:   site.Name,
		Latitude:   site.Latitude,
		Longitude:  site.Longitude,
		IsPeakHour: p.localizer.IsPeakHour(sampleTime),
	}

	if results.traffic.Status == upstream.StatusOK {
		level := results.traffic.Value
		sample.TrafficLevel = &level
	}
	if results.aqi.Status == upstream.StatusOK {
		value := results.aqi.Value
		sample.AQIValue = &value
		sample.AQICategory = protocol.CategoryFor(&value)
	}

	if !sample.HasAQI() && !sample.HasTraffic() {
		p.skipped.Add(1)
		p.failures[site.Name].Add(1)
		log.Printf("No metrics for %s this cycle (traffic: %s, aqi: %s)",
			site.Name, results.traffic.Reason, results.aqi.Reason)
		return false
	}

	if err := sample.Validate(); err != nil {
		p.skipped.Add(1)
		p.failures[site.Name].Add(1)
		log.Printf("Dropping malformed sample for %s: %v", site.Name, err)
		return false
	}

	payload, err := protocol.EncodeLocationSample(sample)
	if err != nil {
		p.skipped.Add(1)
		log.Printf("Failed to encode sample for %s: %v", site.Name, err)
		return false
	}

	p.publish(ctx, sample.Location, payload)
	p.appendRaw(ctx, sample)
	p.emitted.Add(1)
	return true
}

// publish sends the sample to the bus with capped backoff. A failed
// publish drops the sample from the speed path only; the raw log append
// that follows is the fallback.
func (p *Poller) publish(ctx context.Context, location string, payload []byte) {
	for attempt := 0; attempt < publishTries; attempt++ {
		err := p.bus.Publish(ctx, location, payload)
		if err == nil {
			return
		}

		if errors.Is(err, queue.ErrMessageTooLarge) {
			p.publishDrops.Add(1)
			log.Printf("Dropping oversized sample for %s: %v", location, err)
			return
		}

		log.Printf("Publish failed for %s (attempt %d/%d): %v", location, attempt+1, publishTries, err)
		if attempt < publishTries-1 {
			if !retry.Sleep(ctx, retry.Backoff(2*p.retryBase, attempt)) {
				break
			}
		}
	}

	p.publishDrops.Add(1)
	log.Printf("Dropping sample for %s after %d publish attempts", location, publishTries)
}

// appendRaw writes the sample to the raw log with bounded retries. The
// raw log is appended even when the publish was dropped.
func (p *Poller) appendRaw(ctx context.Context, sample *protocol.LocationSample) {
	rec := &database.RawRecord{
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
		rec.AQICategory = &category
	}

	err := retry.Do(ctx, rawTries, 2*p.retryBase, func() error {
		return p.store.AppendRaw(ctx, rec)
	})
	if err != nil {
		p.rawDrops.Add(1)
		log.Printf("Failed to append raw record for %s after %d attempts: %v",
			sample.Location, rawTries, err)
	}
}

// Stats is a snapshot of the poller counters.
type Stats struct {
	Cycles           int64
	EmittedSamples   int64
	SkippedLocations int64
	PublishDrops     int64
	RawDrops         int64
	LocationFailures map[string]int64
}

// Stats returns a snapshot of the poller counters.
func (p *Poller) Stats() Stats {
	failures := make(map[string]int64, len(p.failures))
	for name, counter := range p.failures {
		failures[name] = counter.Load()
	}

	return Stats{
		Cycles:           p.cycles.Load(),
		EmittedSamples:   p.emitted.Load(),
		SkippedLocations: p.skipped.Load(),
		PublishDrops:     p.publishDrops.Load(),
		RawDrops:         p.rawDrops.Load(),
		LocationFailures: failures,
	}
}

package upstream

import (
	"context"
)

// Site identifies one monitored point to the upstream feeds: traffic is
// queried by coordinates, air quality by station ID.
type Site struct {
	Name      string
	StationID string
	Latitude  float64
	Longitude float64
}

// Status classifies the outcome of one feed call.
type Status int

const (
	StatusOK Status = iota
	StatusTransient
	StatusPermanent
)

// Result is the outcome of one feed call for one location. Value is
// meaningful only when Status is StatusOK; Reason is free text for logs.
type Result struct {
	Status Status
	Value  int
	Reason string
}

// OK builds a successful result.
func OK(value int) Result {
	return Result{Status: StatusOK, Value: value}
}

// Transient builds a retryable failure result.
func Transient(reason string) Result {
	return Result{Status: StatusTransient, Reason: reason}
}

// Permanent builds a non-retryable failure result.
func Permanent(reason string) Result {
	return Result{Status: StatusPermanent, Reason: reason}
}

// Client fetches the two metric feeds for a monitored site. Deadlines
// arrive through ctx; implementations must honor them.
type Client interface {
	FetchTraffic(ctx context.Context, site Site) Result
	FetchAQI(ctx context.Context, site Site) Result
}

// Feeds bundles the two concrete feed clients into a Client.
type Feeds struct {
	Traffic *TrafficClient
	AQI     *AQIClient
}

// FetchTraffic queries the traffic feed.
func (f *Feeds) FetchTraffic(ctx context.Context, site Site) Result {
	return f.Traffic.Fetch(ctx, site)
}

// FetchAQI queries the air-quality feed.
func (f *Feeds) FetchAQI(ctx context.Context, site Site) Result {
	return f.AQI.Fetch(ctx, site)
}

package upstream

import (
	"context"
	"sync"
)

// FakeClient is a scripted Client for tests. Results queued per
// location are returned in order; the last one repeats once the queue
// drains, and an unscripted location reports a transient failure.
type FakeClient struct {
	mu           sync.Mutex
	traffic      map[string][]Result
	aqi          map[string][]Result
	TrafficCalls map[string]int
	AQICalls     map[string]int
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		traffic:      make(map[string][]Result),
		aqi:          make(map[string][]Result),
		TrafficCalls: make(map[string]int),
		AQICalls:     make(map[string]int),
	}
}

// QueueTraffic scripts traffic results for a location.
func (f *FakeClient) QueueTraffic(location string, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traffic[location] = append(f.traffic[location], results...)
}

// QueueAQI scripts AQI results for a location.
func (f *FakeClient) QueueAQI(location string, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aqi[location] = append(f.aqi[location], results...)
}

// FetchTraffic returns the next scripted traffic result.
func (f *FakeClient) FetchTraffic(ctx context.Context, site Site) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TrafficCalls[site.Name]++
	return next(f.traffic, site.Name)
}

// FetchAQI returns the next scripted AQI result.
func (f *FakeClient) FetchAQI(ctx context.Context, site Site) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AQICalls[site.Name]++
	return next(f.aqi, site.Name)
}

func next(queues map[string][]Result, name string) Result {
	queue := queues[name]
	if len(queue) == 0 {
		return Transient("no scripted result")
	}
	r := queue[0]
	if len(queue) > 1 {
		queues[name] = queue[1:]
	}
	return r
}

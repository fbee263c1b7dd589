package health

import (
	"fmt"
	"sync"
	"time"
)

// staleFactor is how many missed beat periods mark a component as stale.
const staleFactor = 3

// Monitor tracks the heartbeat of a single pipeline component.
type Monitor struct {
	Name     string
	Period   time.Duration
	Started  time.Time
	LastBeat time.Time
	mu       sync.RWMutex
}

// UpdateLastBeat records a fresh heartbeat.
func (m *Monitor) UpdateLastBeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBeat = time.Now()
}

// GetLastBeat returns the most recent heartbeat timestamp.
func (m *Monitor) GetLastBeat() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastBeat
}

// Registry tracks heartbeats for all components of a process.
type Registry struct {
	monitors map[string]*Monitor // key: component name
	mu       sync.RWMutex
}

// NewRegistry creates a new heartbeat registry.
func NewRegistry() *Registry {
	return &Registry{
		monitors: make(map[string]*Monitor),
	}
}

// Register adds a component that is expected to beat once per period.
func (r *Registry) Register(name string, period time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if period <= 0 {
		return ErrInvalidPeriod
	}

	if _, exists := r.monitors[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	now := time.Now()
	r.monitors[name] = &Monitor{
		Name:     name,
		Period:   period,
		Started:  now,
		LastBeat: now,
	}

	return nil
}

// Beat records a heartbeat for a component.
func (r *Registry) Beat(name string) error {
	r.mu.RLock()
	monitor, exists := r.monitors[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("component %s not found", name)
	}

	monitor.UpdateLastBeat()
	return nil
}

// Get retrieves a component monitor by name.
func (r *Registry) Get(name string) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	monitor, exists := r.monitors[name]
	return monitor, exists
}

// GetStaleComponents returns component names whose last beat is older than
// staleFactor times their period.
func (r *Registry) GetStaleComponents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var stale []string

	for name, monitor := range r.monitors {
		lastBeat := monitor.GetLastBeat()
		if now.Sub(lastBeat) > staleFactor*monitor.Period {
			stale = append(stale, name)
		}
	}

	return stale
}

// Healthy reports whether every registered component has beaten recently.
func (r *Registry) Healthy() bool {
	return len(r.GetStaleComponents()) == 0
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// ComponentStatus describes the heartbeat state of one component.
type ComponentStatus struct {
	Name     string    `json:"name"`
	Healthy  bool      `json:"healthy"`
	LastBeat time.Time `json:"last_beat"`
	PeriodMS int64     `json:"period_ms"`
}

// Snapshot returns the heartbeat state of every registered component.
func (r *Registry) Snapshot() []ComponentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	statuses := make([]ComponentStatus, 0, len(r.monitors))

	for _, monitor := range r.monitors {
		lastBeat := monitor.GetLastBeat()
		statuses = append(statuses, ComponentStatus{
			Name:     monitor.Name,
			Healthy:  now.Sub(lastBeat) <= staleFactor*monitor.Period,
			LastBeat: lastBeat,
			PeriodMS: monitor.Period.Milliseconds(),
		})
	}

	return statuses
}

var (
	ErrInvalidPeriod = &HealthError{"heartbeat period must be positive"}
)

// HealthError represents a health registry error.
type HealthError struct {
	msg string
}

func (e *HealthError) Error() string {
	return e.msg
}

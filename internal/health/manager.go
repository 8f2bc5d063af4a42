package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 30 * time.Second

// Manager runs registered checkers, keeps the last result per
// component and refreshes them on a background ticker so cached reads
// stay warm between probe requests.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	last     map[string]Result
	started  bool

	interval time.Duration
	stopCh   chan struct{}
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		last:     make(map[string]Result),
		interval: defaultInterval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Register adds a checker. Not safe to call after Start.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.Info("health checker registered",
		zap.String("component", c.Name()),
		zap.Bool("critical", c.Critical()),
		zap.Duration("timeout", c.Timeout()),
	)
}

// Check probes every dependency now, in parallel, and returns the
// aggregate.
func (m *Manager) Check(ctx context.Context) Overview {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make([]Result, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.probe(ctx, c)
		}(i, c)
	}
	wg.Wait()

	components := make(map[string]Result, len(results))
	for _, r := range results {
		components[r.Component] = r
	}

	m.mu.Lock()
	for name, r := range components {
		m.last[name] = r
	}
	m.mu.Unlock()

	return aggregate(components)
}

// Cached aggregates the most recent results without probing.
func (m *Manager) Cached() Overview {
	m.mu.RLock()
	components := make(map[string]Result, len(m.last))
	for name, r := range m.last {
		components[name] = r
	}
	m.mu.RUnlock()
	return aggregate(components)
}

func (m *Manager) probe(ctx context.Context, c Checker) Result {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	r := c.Check(ctx)
	r.Component = c.Name()
	r.Critical = c.Critical()
	r.Timestamp = start
	if r.LatencyMS == 0 {
		r.LatencyMS = time.Since(start).Milliseconds()
	}
	return r
}

// Start begins the background refresh loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Check(context.Background())
			}
		}
	}()
	m.logger.Info("health manager started", zap.Duration("interval", m.interval))
}

// Stop halts the background refresh loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	close(m.stopCh)
	m.started = false
}

func aggregate(components map[string]Result) Overview {
	ov := Overview{Components: components, Timestamp: time.Now()}
	if len(components) == 0 {
		ov.Status = StatusUnknown
		ov.Message = "no health checkers registered"
		return ov
	}

	critical, degraded := 0, 0
	for _, r := range components {
		switch r.Status {
		case StatusDegraded:
			degraded++
		case StatusUnhealthy:
			if r.Critical {
				critical++
			} else {
				degraded++
			}
		}
	}

	switch {
	case critical > 0:
		ov.Status = StatusUnhealthy
		ov.Message = fmt.Sprintf("%d critical component(s) failing", critical)
	case degraded > 0:
		ov.Status = StatusDegraded
		ov.Ready = true
		ov.Message = fmt.Sprintf("%d component(s) degraded", degraded)
	default:
		ov.Status = StatusHealthy
		ov.Ready = true
		ov.Message = fmt.Sprintf("all %d components healthy", len(components))
	}
	return ov
}

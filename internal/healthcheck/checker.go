package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Probe checks one dependency. A nil error means reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Performs health checks on the gateway's backing stores
type Checker struct {
	mu           sync.RWMutex
	probes       []Probe
	healthStatus map[string]*Status
	interval     time.Duration
	timeout      time.Duration
	maxFailures  int
	logger       *slog.Logger
	stopChan     chan struct{}
	running      bool
}

// Holds health checker configuration
type Config struct {
	Probes      []Probe
	Interval    time.Duration // How often to check in the background (default: 10s)
	Timeout     time.Duration // Per-probe timeout (default: 2s)
	MaxFailures int           // Consecutive failures before marking unhealthy (default: 1)
	Logger      *slog.Logger
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	checker := &Checker{
		probes:       cfg.Probes,
		healthStatus: make(map[string]*Status),
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		logger:       cfg.Logger,
		stopChan:     make(chan struct{}),
	}

	// Initialize status for all probes
	for _, p := range cfg.Probes {
		checker.healthStatus[p.Name] = &Status{
			Name:      p.Name,
			IsHealthy: true, // Assume healthy initially
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic health checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("health_checks_started", "probes", len(c.probes), "interval", c.interval)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Check(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.logger.Info("health_checks_stopped")
	}
}

// Check runs every probe concurrently and returns the resulting overall health.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup

	for _, p := range c.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			c.runProbe(ctx, p)
		}(p)
	}

	wg.Wait()
	return c.OverallHealth()
}

func (c *Checker) runProbe(ctx context.Context, p Probe) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		c.recordFailure(p.Name, err)
		return
	}
	c.recordSuccess(p.Name)
}

// Records a successful health check
func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.healthStatus[name]
	status.LastCheck = now
	status.LastSuccess = now
	status.LastError = ""
	status.FailureCount = 0

	if !status.IsHealthy {
		c.logger.Info("dependency_healthy", "dependency", name)
		status.IsHealthy = true
	}
}

// Records a failed health check
func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.healthStatus[name]
	status.LastCheck = now
	status.LastFailure = now
	status.LastError = err.Error()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.logger.Warn("dependency_unhealthy", "dependency", name, "failures", status.FailureCount, "err", err)
		status.IsHealthy = false
	}
}

// Returns health status of every probe, in registration order
func (c *Checker) GetAllStatus() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make([]Status, 0, len(c.probes))
	for _, p := range c.probes {
		statuses = append(statuses, *c.healthStatus[p.Name])
	}

	return statuses
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.probes)
	healthyCount := 0
	for _, p := range c.probes {
		if c.healthStatus[p.Name].IsHealthy {
			healthyCount++
		}
	}

	if total > 0 && healthyCount == 0 {
		return Unhealthy
	}
	if healthyCount < total {
		return Degraded
	}

	return Healthy
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the result of one backend health check
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// HealthChecker is implemented by stores that can verify their connection
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
}

func newHealth(status, message string, err error) Health {
	h := Health{LastCheck: time.Now(), Status: status, Message: message}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// CheckHealth pings the SQLite database
func (s *SQLiteStore) CheckHealth(ctx context.Context) Health {
	if err := s.db.PingContext(ctx); err != nil {
		return newHealth(StatusUnhealthy, "Database ping failed", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_runs").Scan(&n); err != nil {
		return newHealth(StatusUnhealthy, "Database query test failed", err)
	}
	return newHealth(StatusHealthy, fmt.Sprintf("SQLite operational, %d stored runs", n), nil)
}

// CheckHealth pings TimescaleDB and runs a trivial query
func (t *TimescaleStore) CheckHealth(ctx context.Context) Health {
	sqlDB, err := t.DB.DB()
	if err != nil {
		return newHealth(StatusUnhealthy, "Failed to get underlying database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return newHealth(StatusUnhealthy, "Database ping failed", err)
	}
	var result int
	if err := t.DB.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return newHealth(StatusUnhealthy, "Database query test failed", err)
	}
	return newHealth(StatusHealthy, "TimescaleDB operational - ping: OK, query test: OK", nil)
}

// HealthManager keeps the latest health of each backend
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
}

func NewHealthManager() *HealthManager {
	return &HealthManager{health: make(map[string]Health)}
}

// UpdateHealth records the health of a backend
func (hm *HealthManager) UpdateHealth(name string, h Health) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[name] = h
}

// GetHealth returns the latest health of a backend
func (hm *HealthManager) GetHealth(name string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[name]
	return h, ok
}

// GetAllHealth returns a copy of every recorded health status
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	result := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether a backend was healthy within maxAge
func (hm *HealthManager) IsHealthy(name string, maxAge time.Duration) bool {
	h, ok := hm.GetHealth(name)
	if !ok || time.Since(h.LastCheck) > maxAge {
		return false
	}
	return h.Status == StatusHealthy
}

// StartHealthMonitor checks a backend immediately and then every interval until ctx is done.
// The returned channel closes when the monitor stops.
func StartHealthMonitor(ctx context.Context, name string, checker HealthChecker, interval time.Duration,
	hm *HealthManager, logger *zap.SugaredLogger) <-chan struct{} {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		update := func() {
			h := checker.CheckHealth(ctx)
			hm.UpdateHealth(name, h)
			logger.Debugf("updated %s health status: %s", name, h.Status)
		}
		update()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", name)
				return
			}
		}
	}()

	return done
}

// BackendName names the backend behind a store for health reporting
func BackendName(s Store) string {
	switch s.(type) {
	case *TimescaleStore:
		return "timescaledb"
	case *SQLiteStore:
		return "sqlite"
	default:
		return "unknown"
	}
}

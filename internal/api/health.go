package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports dependency health. Redis is optional; a nil client
// reports not_configured without degrading overall status.
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	startTime time.Time
}

func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, startTime: time.Now()}
}

// Handle serves GET /health.
func (hc *HealthChecker) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]ComponentCheck{
		"postgres": hc.checkDB(ctx),
		"redis":    hc.checkRedis(ctx),
	}

	status := "healthy"
	code := http.StatusOK
	if checks["postgres"].Status == "down" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if checks["redis"].Status == "down" {
		status = "degraded"
	}

	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"uptime": time.Since(hc.startTime).Round(time.Second).String(),
		"checks": checks,
	})
}

func (hc *HealthChecker) checkDB(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := hc.db.PingContext(ctx); err != nil {
		return ComponentCheck{Status: "down", Message: "database unreachable"}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := hc.redis.Ping(ctx).Err(); err != nil {
		return ComponentCheck{Status: "down", Message: "redis unreachable"}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}

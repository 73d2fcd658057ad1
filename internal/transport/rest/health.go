package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/baechuer/order-lifecycle-service/internal/transport/rest/response"
)

const readinessTimeout = 2 * time.Second

// Pinger is implemented by pgxpool.Pool and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	deps map[string]Pinger
}

func NewHealth(deps map[string]Pinger) *Health {
	return &Health{deps: deps}
}

// Live handles GET /health/live. Process is up; nothing else is claimed.
func (h *Health) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /health/ready: all dependencies are pinged in parallel
// and any failure turns the probe 503 with a per-dependency status map.
func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	statuses := make(map[string]string, len(h.deps))
	healthy := true

	for name, dep := range h.deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			status := "ok"
			if err := dep.Ping(ctx); err != nil {
				status = "unavailable: " + err.Error()
			}
			mu.Lock()
			statuses[name] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	code := http.StatusOK
	overall := "ready"
	if !healthy {
		code = http.StatusServiceUnavailable
		overall = "not_ready"
	}
	response.JSON(w, code, map[string]any{
		"status":       overall,
		"dependencies": statuses,
	})
}

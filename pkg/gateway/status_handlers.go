package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/logging"
)

const healthCheckTimeout = 3 * time.Second

type systemStats struct {
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryPercent float64 `json:"memoryPercent"`
}

// healthHandler reports OK when every dependency check passes, DEGRADED
// with a 503 otherwise.
func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "OK"
	code := http.StatusOK
	checks := make(map[string]string, len(g.deps.Checks))
	for name, check := range g.deps.Checks {
		if err := check(ctx); err != nil {
			g.logger.ComponentWarn(logging.ComponentGateway, "health check failed",
				zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = "DEGRADED"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	httputil.WriteJSON(w, code, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC(),
		"programId":      g.deps.ProgramID,
		"adminPublicKey": g.deps.SignerAddress,
		"system":         readSystemStats(),
		"checks":         checks,
		"startedAt":      g.startedAt,
		"uptime":         time.Since(g.startedAt).String(),
	})
}

func readSystemStats() *systemStats {
	mem, err := memory.Get()
	if err != nil || mem.Total == 0 {
		return nil
	}
	return &systemStats{
		MemoryTotal:   mem.Total,
		MemoryUsed:    mem.Used,
		MemoryPercent: float64(mem.Used) / float64(mem.Total) * 100,
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness. With ?deep=1 it also probes the AI providers and
// answers 503 when one is unhealthy.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" || a.Providers == nil {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	h := a.Providers.HealthCheck(ctx)
	status, code := "ok", http.StatusOK
	if !h.OK() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	a.json(w, code, map[string]any{"status": status, "providers": h})
}

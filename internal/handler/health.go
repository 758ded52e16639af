package handler

import (
	"encoding/json"
	"net/http"

	"github.com/habitquest/platform/internal/infra"
)

// HealthHandler returns a health check endpoint reporting each named dependency.
func HealthHandler(deps map[string]infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := infra.HealthCheck(r.Context(), dep); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		body := map[string]interface{}{"status": "healthy", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// handleHealth reports service health, degraded when a database check fails
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string)
	for _, db := range s.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health check failed")
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[db.Name()] = "ok"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"service":   "composite",
		"databases": checks,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}
	if s.composite != nil {
		response["charts"] = s.composite.ChartCount()
	}

	writeJSON(w, status, response, s.log)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string, log zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, log)
}

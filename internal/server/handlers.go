package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]any{
		"status":  "healthy",
		"version": Version,
		"service": "oracle-portfolio",
	}

	for _, db := range s.container.Databases() {
		if err := db.Conn().PingContext(r.Context()); err != nil {
			s.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			status = http.StatusServiceUnavailable
			response["status"] = "unhealthy"
			response["error"] = err.Error()
			break
		}
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

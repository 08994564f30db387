package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/pagelet/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := version.Get()
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   info.Short(),
		"engines":   info.Engines,
		"cache": map[string]interface{}{
			"enabled": s.config.Cache.Enabled,
			"entries": s.hook.Cache().Len(),
		},
	}

	s.writeJSON(w, r, health)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cache := s.hook.Cache()
	response := map[string]interface{}{
		"enabled":   s.config.Cache.Enabled,
		"stats":     cache.Stats(),
		"keys":      cache.Keys(),
		"timestamp": time.Now().Unix(),
	}

	s.writeJSON(w, r, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response")
	}
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/consumerdata/ccdb-etl/internal/domain"
)

// Handler exposes pipeline runs as an HTTP endpoint for the scheduler.
type Handler struct {
	service  *Service
	defaults RunConfig
}

// NewHTTPHandler wraps the service with a POST endpoint. The request body may
// override any of the default run settings.
func NewHTTPHandler(service *Service, defaults RunConfig) http.Handler {
	return &Handler{service: service, defaults: defaults}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.defaults
	if r.Body != nil && r.ContentLength != 0 {
		var override RunConfig
		if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
			http.Error(w, fmt.Sprintf("invalid run config: %v", err), http.StatusBadRequest)
			return
		}
		if len(override.Companies) > 0 {
			cfg.Companies = override.Companies
		}
		if override.LookbackDays > 0 {
			cfg.LookbackDays = override.LookbackDays
		}
		if override.MaxRecords > 0 {
			cfg.MaxRecords = override.MaxRecords
		}
	}

	if len(cfg.Companies) == 0 {
		http.Error(w, "companies is required", http.StatusBadRequest)
		return
	}

	report := h.service.Run(r.Context(), cfg)

	status := http.StatusOK
	if report.Status == domain.RunFailed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

package api

import (
	"context"
	"net/http"
	"time"
)

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store"`
}

func (hd *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st := healthStatus{Status: "OK", Version: hd.cfg.Version, Store: "ok"}
	if err := hd.history.Store().Ping(ctx); err != nil {
		hd.logger.WarnContext(ctx, "health check: store ping failed", "error", err)
		st.Status, st.Store = "DEGRADED", "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

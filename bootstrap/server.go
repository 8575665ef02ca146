package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sentra/core"
	"sentra/ingest"
	"sentra/storage"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// Router builds the serve HTTP surface: metrics, health, push ingest and
// read-only views of the dashboard and recorded runs.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/events", ingest.NewHTTPHandler(a.Storage.Events, a.Config.Server.IngestRateLimit, a.Sugar)).
		Methods(http.MethodPost)
	api.HandleFunc("/dashboard", a.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/runs", a.handleRunStats).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runKey}", a.handleRun).Methods(http.MethodGet)

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := a.Storage.SQLite.HealthCheck(ctx); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"pools":  a.Storage.SQLite.Pools(),
	})
}

func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rng, err := core.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	summary, err := a.Dashboard.Summary(r.Context(), rng)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to build dashboard", err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *App) handleRunStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Anomalies.Stats(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to load run stats", err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	table, err := a.Anomalies.Show(r.Context(), mux.Vars(r)["runKey"])
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		a.writeError(w, http.StatusNotFound, "run not found", nil)
	case errors.Is(err, storage.ErrInvalidRunKey):
		a.writeError(w, http.StatusBadRequest, "invalid run key", nil)
	case err != nil:
		a.writeError(w, http.StatusInternalServerError, "failed to load run", err)
	default:
		a.writeJSON(w, http.StatusOK, table)
	}
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Sugar.Warnw("Failed to write response", "error", err)
	}
}

func (a *App) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		a.Sugar.Errorw(message, "error", err, "status_code", status)
	}
	a.writeJSON(w, status, map[string]string{"error": message})
}

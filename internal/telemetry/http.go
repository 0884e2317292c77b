package telemetry

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ComponentStats returns the component-scoped view for a name recognized by
// /api/metrics/components — one of sequencer, bridge, relayer, recovery.
// Implementations register their series under a "<component>." prefix.
func (r *Registry) ComponentStats(component string) map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := component + "."
	out := make(map[string]float64)
	for name, s := range r.series {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out[name] = s.current
		}
	}
	return out
}

// Router builds the mux.Router serving §6.4's telemetry endpoints.
func (r *Registry) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/metrics/system", r.handleSystem).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics/components", r.handleComponents).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics/historical", r.handleHistorical).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics/analysis", r.handleAnalysis).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(r.prom.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	if r.push != nil {
		router.HandleFunc("/ws/metrics", r.push.HandleWebSocket)
		router.PathPrefix("/socket.io/").Handler(r.push.ServeSocketIO())
	}

	return router
}

func (r *Registry) handleSystem(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, r.Snapshot())
}

func (r *Registry) handleComponents(w http.ResponseWriter, req *http.Request) {
	component := req.URL.Query().Get("component")
	if component == "" {
		http.Error(w, "missing component query parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, r.ComponentStats(component))
}

func (r *Registry) handleHistorical(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("type")
	tf, err := ParseTimeframe(req.URL.Query().Get("timeframe"))
	if name == "" || err != nil {
		http.Error(w, "missing or invalid type/timeframe query parameters", http.StatusBadRequest)
		return
	}
	writeJSON(w, r.Historical(name, tf))
}

func (r *Registry) handleAnalysis(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("type")
	tf, err := ParseTimeframe(req.URL.Query().Get("timeframe"))
	if name == "" || err != nil {
		http.Error(w, "missing or invalid type/timeframe query parameters", http.StatusBadRequest)
		return
	}
	writeJSON(w, r.Analysis(name, tf))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

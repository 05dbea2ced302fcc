package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/monitor"
	"github.com/banshee-data/terrain.report/internal/traverse"
	"github.com/banshee-data/terrain.report/internal/traversedb"
	"github.com/banshee-data/terrain.report/internal/version"
)

// Server exposes the traversability engine over HTTP. All query handlers
// operate on snapshots, so requests never block an in-flight recompute.
// With persist enabled, every successful on-demand compute is snapshotted
// to db with reason "post_compute".
type Server struct {
	mg      *traverse.Manager
	db      *traversedb.DB
	persist bool
}

func NewServer(mg *traverse.Manager, db *traversedb.DB, persist bool) *Server {
	return &Server{mg: mg, db: db, persist: persist}
}

func (s *Server) persistPostCompute() {
	if !s.persist || s.db == nil {
		return
	}
	persistSnapshot(s.db, s.mg, "post_compute")
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%d] %s %s %vms",
			lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/elevation", s.handleElevation)
	mux.HandleFunc("/api/map", s.handleMap)
	mux.HandleFunc("/api/check_path", s.handleCheckPath)
	mux.HandleFunc("/api/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/fraction", s.handleFraction)
	mux.HandleFunc("/api/recompute", s.handleRecompute)
	mux.HandleFunc("/api/footprint", s.handleFootprint)
	mux.HandleFunc("/api/reset_footprint_layers", s.handleResetFootprintLayers)
	mux.HandleFunc("/api/reload_filters", s.handleReloadFilters)
	mux.HandleFunc("/api/plot", s.handlePlot)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine error taxonomy onto HTTP status codes:
// bad input is 400, an uninitialized store is 409, everything else 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var verr *traverse.ValidationError
	var gerr *traverse.GeometryError
	var nerr *traverse.NotInitializedError
	switch {
	case errors.As(err, &verr), errors.As(err, &gerr):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nerr):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	default:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleElevation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var g GridJSON
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad grid payload: %v", err))
		return
	}
	m, err := g.ToMap()
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.mg.SetElevationMap(m); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.mg.Compute(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persistPostCompute()
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	m, err := s.mg.TraversabilityMap()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, GridToJSON(m))
}

func (s *Server) handleCheckPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req CheckPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad path payload: %v", err))
		return
	}
	res, err := s.mg.CheckPath(req.Path)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleEvaluate is the point-safety query: one footprint placement scored
// against the current map, without segment inclination checks.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad placement payload: %v", err))
		return
	}
	res, err := s.mg.Evaluate(req.Pose, req.Footprint)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	frac, err := s.mg.TraversableFraction()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FractionResponse{Fraction: frac})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.mg.Compute(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persistPostCompute()
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleFootprint bakes the footprint layers over the whole map. With a
// radius parameter the disc footprint is used, otherwise the configured
// polygon at the given yaw (default 0).
func (s *Server) handleFootprint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	if rad := q.Get("radius"); rad != "" {
		radius, err := strconv.ParseFloat(rad, 64)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'radius' parameter")
			return
		}
		offset := 0.0
		if o := q.Get("offset"); o != "" {
			if offset, err = strconv.ParseFloat(o, 64); err != nil {
				s.writeJSONError(w, http.StatusBadRequest, "invalid 'offset' parameter")
				return
			}
		}
		if err := s.mg.TraversabilityFootprintCircle(radius, offset); err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
		return
	}
	yaw := 0.0
	if y := q.Get("yaw"); y != "" {
		var err error
		if yaw, err = strconv.ParseFloat(y, 64); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'yaw' parameter")
			return
		}
	}
	if err := s.mg.TraversabilityFootprint(yaw); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleResetFootprintLayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.mg.ResetFootprintLayers(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleReloadFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ReloadFiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad chain payload: %v", err))
		return
	}
	if err := s.mg.ReloadFilters(req.Chain); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	layer := r.URL.Query().Get("layer")
	if layer == "" {
		layer = gridmap.LayerTraversability
	}
	m, err := s.mg.TraversabilityMap()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !m.Has(layer) {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no layer %q", layer))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := monitor.WritePNG(w, m, layer); err != nil {
		log.Printf("failed to render %s heatmap: %v", layer, err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     version.String(),
		"initialized": s.mg.Initialized(),
	})
}

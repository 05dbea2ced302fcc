package main

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/monitoring"
	"github.com/banshee-data/terrain.report/internal/traverse"
	"github.com/banshee-data/terrain.report/internal/traversedb"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(orig) })

	mg, err := traverse.NewManager(config.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv := httptest.NewServer(NewServer(mg, nil, false).ServeMux())
	t.Cleanup(srv.Close)
	return srv
}

// flatGrid is an elevation payload for a flat 7x7 map at 1m resolution
// centred on the origin.
func flatGrid() GridJSON {
	cells := make([]*float64, 49)
	for i := range cells {
		z := 0.0
		cells[i] = &z
	}
	return GridJSON{
		FrameID:    "map",
		Resolution: 1,
		Rows:       7,
		Cols:       7,
		Layers:     map[string][]*float64{gridmap.LayerElevation: cells},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHandleElevationAndMap(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/elevation status = %d, want 200", resp.StatusCode)
	}

	mapResp, err := http.Get(srv.URL + "/api/map")
	if err != nil {
		t.Fatalf("GET /api/map: %v", err)
	}
	defer mapResp.Body.Close()
	if mapResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/map status = %d, want 200", mapResp.StatusCode)
	}
	var g GridJSON
	if err := json.NewDecoder(mapResp.Body).Decode(&g); err != nil {
		t.Fatalf("decode map response: %v", err)
	}
	if g.Rows != 7 || g.Cols != 7 {
		t.Fatalf("map dims = %dx%d, want 7x7", g.Rows, g.Cols)
	}
	cells, ok := g.Layers[gridmap.LayerTraversability]
	if !ok {
		t.Fatalf("map response missing %s layer, got %d layers", gridmap.LayerTraversability, len(g.Layers))
	}
	for i, v := range cells {
		if v == nil || *v != 1.0 {
			t.Fatalf("traversability cell %d = %v, want 1.0", i, v)
		}
	}
}

func TestHandleMapBeforeInit(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/map")
	if err != nil {
		t.Fatalf("GET /api/map: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 before first compute", resp.StatusCode)
	}
}

func TestHandleCheckPath(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()

	path := CheckPathRequest{Path: traverse.Path{
		Poses:     []traverse.Pose{{X: -1, Y: 0}, {X: 1, Y: 0}},
		Footprint: traverse.Footprint{Radius: 0.5},
	}}
	resp = postJSON(t, srv.URL+"/api/check_path", path)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/check_path status = %d, want 200", resp.StatusCode)
	}
	var res traverse.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Traversable {
		t.Fatalf("flat path not traversable: %+v", res)
	}
	if res.Traversability != 1.0 {
		t.Fatalf("traversability = %g, want 1.0", res.Traversability)
	}
}

func TestHandleCheckPathEmptyPath(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/check_path", CheckPathRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty path", resp.StatusCode)
	}
}

func TestHandleEvaluate(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()

	req := EvaluateRequest{
		Pose:      traverse.Pose{X: 0, Y: 0},
		Footprint: traverse.Footprint{Radius: 1},
	}
	resp = postJSON(t, srv.URL+"/api/evaluate", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/evaluate status = %d, want 200", resp.StatusCode)
	}
	var res traverse.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Traversable || res.Traversability != 1.0 {
		t.Fatalf("flat placement: %+v", res)
	}
}

func TestHandleEvaluateBeforeInit(t *testing.T) {
	srv := setupTestServer(t)

	req := EvaluateRequest{Footprint: traverse.Footprint{Radius: 0.5}}
	resp := postJSON(t, srv.URL+"/api/evaluate", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 before first compute", resp.StatusCode)
	}
}

func TestRecomputePersistsSnapshot(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(orig) })

	mg, err := traverse.NewManager(config.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	db, err := traversedb.Open(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(NewServer(mg, db, true).ServeMux())
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/elevation status = %d, want 200", resp.StatusCode)
	}

	rec, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a snapshot after an on-demand compute")
	}
	if rec.Reason != "post_compute" {
		t.Fatalf("snapshot reason = %q, want post_compute", rec.Reason)
	}
	if rec.Fraction != 1.0 {
		t.Fatalf("snapshot fraction = %g, want 1.0", rec.Fraction)
	}
}

func TestHandleFraction(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()

	fr, err := http.Get(srv.URL + "/api/fraction")
	if err != nil {
		t.Fatalf("GET /api/fraction: %v", err)
	}
	defer fr.Body.Close()
	var body FractionResponse
	if err := json.NewDecoder(fr.Body).Decode(&body); err != nil {
		t.Fatalf("decode fraction: %v", err)
	}
	if body.Fraction != 1.0 {
		t.Fatalf("fraction = %g, want 1.0 on a flat map", body.Fraction)
	}
}

func TestHandleReloadFilters(t *testing.T) {
	srv := setupTestServer(t)

	req := ReloadFiltersRequest{Chain: []config.StageConfig{{Type: "slope"}}}
	resp := postJSON(t, srv.URL+"/api/reload_filters", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d, want 200", resp.StatusCode)
	}

	req = ReloadFiltersRequest{Chain: []config.StageConfig{{Type: "bogus"}}}
	resp = postJSON(t, srv.URL+"/api/reload_filters", req)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("expected reload with unknown stage type to fail")
	}
}

func TestHandlePlot(t *testing.T) {
	srv := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/elevation", flatGrid())
	resp.Body.Close()

	plot, err := http.Get(srv.URL + "/api/plot?layer=" + gridmap.LayerTraversability)
	if err != nil {
		t.Fatalf("GET /api/plot: %v", err)
	}
	defer plot.Body.Close()
	if plot.StatusCode != http.StatusOK {
		t.Fatalf("plot status = %d, want 200", plot.StatusCode)
	}
	if ct := plot.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("plot content type = %q, want image/png", ct)
	}

	missing, err := http.Get(srv.URL + "/api/plot?layer=bogus")
	if err != nil {
		t.Fatalf("GET /api/plot: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("plot status for missing layer = %d, want 404", missing.StatusCode)
	}
}

func TestHandleHealthz(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestGridJSONRoundTripNaN(t *testing.T) {
	g := flatGrid()
	g.Layers[gridmap.LayerElevation][10] = nil

	m, err := g.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	data := m.Data(gridmap.LayerElevation)
	if !math.IsNaN(data[10]) {
		t.Fatalf("cell 10 = %g, want NaN for a null cell", data[10])
	}

	back := GridToJSON(m)
	if back.Layers[gridmap.LayerElevation][10] != nil {
		t.Fatal("expected NaN cell to marshal as null")
	}

	// The full document must be valid JSON despite the no-data cell.
	if _, err := json.Marshal(back); err != nil {
		t.Fatalf("marshal with NaN cell: %v", err)
	}
}

func TestMain(m *testing.M) {
	log.SetOutput(testWriter{})
	m.Run()
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

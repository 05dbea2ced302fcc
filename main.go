// Command terrain-report runs the traversability estimation daemon: it
// maintains an elevation map, derives traversability layers from it, and
// serves placement and path safety queries over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/traverse"
	"github.com/banshee-data/terrain.report/internal/traversedb"
	"github.com/banshee-data/terrain.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to JSON config file (defaults used when empty)")
	dbFile     = flag.String("db", "terrain_data.db", "Path to the snapshot database")
	keepSnaps  = flag.Int("keep-snapshots", 50, "Snapshots retained when persistence is enabled")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("terrain-report %s", version.String())

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	mg, err := traverse.NewManager(cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	db, err := traversedb.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Restore the last derived map so queries work across a restart, even
	// before the first elevation update arrives.
	if rec, err := db.LatestSnapshot(); err != nil {
		log.Printf("failed to read latest snapshot: %v", err)
	} else if rec != nil {
		if m, err := rec.Map(); err != nil {
			log.Printf("failed to decode snapshot %s: %v", rec.SnapshotID, err)
		} else if err := mg.SetTraversabilityMap(m); err != nil {
			log.Printf("failed to restore snapshot %s: %v", rec.SnapshotID, err)
		} else {
			log.Printf("restored traversability map from snapshot %s", rec.SnapshotID)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic recompute keeps the derived map fresh while elevation updates
	// stream in between explicit recompute requests.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.RecomputeEvery())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !mg.Elevation.Initialized() {
					continue
				}
				if err := mg.Compute(); err != nil {
					log.Printf("periodic recompute failed: %v", err)
					continue
				}
				if *cfg.PersistSnapshots {
					persistSnapshot(db, mg, "periodic")
				}
			case <-ctx.Done():
				log.Print("recompute routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: LoggingMiddleware(NewServer(mg, db, *cfg.PersistSnapshots).ServeMux()),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func persistSnapshot(db *traversedb.DB, mg *traverse.Manager, reason string) {
	m, err := mg.TraversabilityMap()
	if err != nil {
		log.Printf("snapshot skipped: %v", err)
		return
	}
	frac, err := mg.TraversableFraction()
	if err != nil {
		log.Printf("snapshot skipped: %v", err)
		return
	}
	rec, err := traversedb.NewSnapshotRecord(m, reason, frac)
	if err != nil {
		log.Printf("failed to build snapshot record: %v", err)
		return
	}
	if err := db.InsertSnapshot(rec); err != nil {
		log.Printf("failed to persist snapshot: %v", err)
		return
	}
	if _, err := db.PruneSnapshots(*keepSnaps); err != nil {
		log.Printf("failed to prune snapshots: %v", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/rendcache/internal/config"
	"github.com/ocx/rendcache/internal/descriptor"
	"github.com/ocx/rendcache/internal/middleware"
	"github.com/ocx/rendcache/internal/rendcache"
	"github.com/ocx/rendcache/internal/ring"
	"github.com/ocx/rendcache/internal/statsink"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("rendcached: no .env file found, relying on process environment")
	}

	cfg := config.Get()
	setUpLogging(cfg.Logging.Level)

	hashRing := ring.New(cfg.Ring.SelfNode, cfg.Ring.Peers, cfg.Ring.IsDirectory)

	stats := buildStatsSink(cfg)

	cache := rendcache.New(cfg.Cache, rendcache.Dependencies{
		Ring:   hashRing,
		Stats:  stats,
		Parser: descriptor.NewTextParser(),
		Crypto: descriptor.NewDefaultCrypto(),
		Logger: slog.Default(),
	})

	sweepCtx, stopSweeping := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, cache, cfg.Cache)

	router := buildRouter(cache, hashRing)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("rendcached: received shutdown signal, shutting down gracefully")
		stopSweeping()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("rendcached: server shutdown error", "error", err)
		}
	}()

	slog.Info("rendcached starting", "port", cfg.Server.Port, "is_directory", cfg.Ring.IsDirectory, "self_node", cfg.Ring.SelfNode)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("rendcached: server failed to start: %v", err)
	}
	slog.Info("rendcached stopped")
}

func setUpLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func buildStatsSink(cfg *config.Config) rendcache.StatsSink {
	switch cfg.Stats.Backend {
	case "prometheus":
		return statsink.NewPrometheus()
	case "redis":
		if !cfg.Redis.Enabled {
			slog.Warn("rendcached: stats backend redis requested but redis is disabled, falling back to no-op")
			return statsink.NoOp{}
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return statsink.NewRedis(rdb, "rendcache:", 24*time.Hour, slog.Default())
	default:
		return statsink.NoOp{}
	}
}

// runSweeper performs the Lifecycle maintenance loop rendcache.spec.md §4.F
// calls out as driven by a timer external to the cache: clean() on every
// tick, escalating into cleanDirectory() whenever total_bytes sits above the
// configured force-eviction watermark.
func runSweeper(ctx context.Context, cache *rendcache.Cache, cfg config.CacheConfig) {
	ticker := time.NewTicker(cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			clientRemoved, dirRemoved := cache.Clean(now)
			if clientRemoved > 0 || dirRemoved > 0 {
				slog.Info("rendcached: age sweep complete", "client_removed", clientRemoved, "directory_removed", dirRemoved)
			}

			if cfg.ForceEvictWatermark > 0 && cache.TotalBytes() > uint64(cfg.ForceEvictWatermark) {
				over := cache.TotalBytes() - uint64(cfg.ForceEvictWatermark)
				bytesRemoved, entriesRemoved := cache.CleanDirectory(now, over)
				slog.Info("rendcached: watermark sweep complete", "bytes_removed", bytesRemoved, "entries_removed", entriesRemoved)
			}
		}
	}
}

func buildRouter(cache *rendcache.Cache, hashRing *ring.Ring) *mux.Router {
	router := mux.NewRouter()
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{}, slog.Default())

	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", statsink.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/lookup/{version:[0-9]+}/{serviceID}", handleLookup(cache)).Methods(http.MethodGet)
	api.HandleFunc("/descriptor/{descID}", handleLookupByDescID(cache)).Methods(http.MethodGet)
	api.HandleFunc("/descriptor", handleStoreAsDirectory(cache)).Methods(http.MethodPost)
	api.HandleFunc("/descriptor/{descID}/client", handleStoreAsClient(cache)).Methods(http.MethodPut)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/purge", handleAdminPurge(cache)).Methods(http.MethodPost)
	admin.HandleFunc("/stats", handleAdminStats(cache, hashRing)).Methods(http.MethodGet)

	router.Use(middleware.RequestID)
	router.Use(middleware.AccessLog(slog.Default()))
	router.Use(limiter.Middleware)
	return router
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "rendcached"})
}

func writeStatus(w http.ResponseWriter, status rendcache.Status) {
	code := http.StatusOK
	switch status {
	case rendcache.NotFound:
		code = http.StatusNotFound
	case rendcache.InvalidQuery, rendcache.BadDescriptor:
		code = http.StatusBadRequest
	case rendcache.NotADirectory:
		code = http.StatusForbidden
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
}

func handleLookup(cache *rendcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		version := 2
		if v, ok := vars["version"]; ok {
			if n, err := parseVersion(v); err == nil {
				version = n
			}
		}
		res, entry := cache.Lookup(vars["serviceID"], version)
		if res != rendcache.LookupFound {
			writeStatus(w, lookupResultToStatus(res))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(entry.Encoded)
	}
}

func handleLookupByDescID(cache *rendcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		res, encoded := cache.LookupByDescID(vars["descID"])
		if res != rendcache.LookupFound {
			writeStatus(w, lookupResultToStatus(res))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(encoded)
	}
}

func handleStoreAsDirectory(cache *rendcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readLimitedBody(r)
		if err != nil {
			writeStatus(w, rendcache.BadDescriptor)
			return
		}
		writeStatus(w, cache.StoreAsDirectory(body))
	}
}

func handleStoreAsClient(cache *rendcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readLimitedBody(r)
		if err != nil {
			writeStatus(w, rendcache.BadDescriptor)
			return
		}
		query := descriptor.ServiceQuery{OnionAddress: r.URL.Query().Get("onion_address")}
		status, _ := cache.StoreAsClient(body, mux.Vars(r)["descID"], query)
		writeStatus(w, status)
	}
}

func handleAdminPurge(cache *rendcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache.Purge()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAdminStats(cache *rendcache.Cache, hashRing *ring.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_bytes":       cache.TotalBytes(),
			"client_entries":    cache.ClientEntryCount(),
			"directory_entries": cache.DirectoryEntryCount(),
			"is_directory":      hashRing.IsDirectory(),
		})
	}
}

func lookupResultToStatus(res rendcache.LookupResult) rendcache.Status {
	switch res {
	case rendcache.LookupInvalidQuery:
		return rendcache.InvalidQuery
	case rendcache.LookupMalformed:
		return rendcache.BadDescriptor
	default:
		return rendcache.NotFound
	}
}

const maxDescriptorBodyBytes = 1 << 20

func readLimitedBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxDescriptorBodyBytes))
}

func parseVersion(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/internal/dashboard"
	"github.com/CosmoTheDev/devops-atlas/internal/ingest"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/session"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
)

// Gateway is the local REST + SSE server the browser UI talks to. It owns no
// state beyond per-user sessions; everything else lives in the store.
type Gateway struct {
	cfg         *config.Config
	store       *store.Store
	repo        *repository.Repository
	registry    *containers.Registry
	dash        *dashboard.Service
	ingester    *ingest.Ingester
	sessions    *session.Manager
	broadcaster *Broadcaster
	watcher     *Watcher

	mu         sync.RWMutex
	startedAt  time.Time
	lastIngest *IngestEvent
}

// New creates a Gateway over an opened store. Call Start to begin serving.
func New(cfg *config.Config, s *store.Store) *Gateway {
	repo := repository.New(s)
	registry := containers.NewRegistry(s)
	gw := &Gateway{
		cfg:         cfg,
		store:       s,
		repo:        repo,
		registry:    registry,
		dash:        dashboard.New(repo, registry),
		ingester:    ingest.New(repo),
		sessions:    session.NewManager(cfg.Store.FetchTimeout),
		broadcaster: newBroadcaster(),
		startedAt:   time.Now(),
	}
	gw.watcher = newWatcher(cfg.Gateway.IngestDir, cfg.Gateway.IngestSchedule, gw.ingestFile)
	return gw
}

// Start runs the gateway until ctx is cancelled. It:
//  1. Seeds the default logic containers
//  2. Starts the snapshot watcher when an ingest directory is configured
//  3. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = 6090
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	// 1. Default containers.
	if err := gw.registry.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seeding containers: %w", err)
	}

	// 2. Watcher.
	if err := gw.watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	// 3. HTTP server.
	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		gw.watcher.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr, "store", gw.store.Engine())
	gw.broadcaster.send(SSEEvent{
		Type:    "gateway.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) currentStatus(ctx context.Context) Status {
	gw.mu.RLock()
	s := Status{
		Store:         gw.store.Engine(),
		UptimeSeconds: int64(time.Since(gw.startedAt).Seconds()),
		LastIngest:    gw.lastIngest,
		Watching:      gw.watcher.Dir(),
		Subscribers:   gw.broadcaster.subscribers(),
	}
	gw.mu.RUnlock()
	if n, err := gw.store.Count(ctx, store.Organisations, "", nil); err == nil {
		s.Organisations = n
	}
	if n, err := gw.store.Count(ctx, store.LogicContainers, "", nil); err == nil {
		s.Containers = n
	}
	return s
}

func (gw *Gateway) recordIngest(evt IngestEvent) {
	gw.mu.Lock()
	gw.lastIngest = &evt
	gw.mu.Unlock()
	gw.broadcaster.send(SSEEvent{Type: "ingest.completed", Payload: evt})
}

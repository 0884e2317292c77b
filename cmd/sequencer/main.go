// Command sequencer wires the off-chain coordination plane together: the
// Telemetry Facade (C1), Ring/Disruptor core (C2/C5), Bridge Batcher (C6),
// Shard Router (C3), and Checkpoint & Recovery Engine (C4). User-facing
// HTTP/WebSocket ingress, dashboard assets, and CLI flag parsing for the
// settlement-layer program are external collaborators and are not built
// here (spec §1); this binary exposes only the §6.4 telemetry endpoints.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/bridge"
	"github.com/l2labs/rollup-sequencer/internal/checkpoint"
	"github.com/l2labs/rollup-sequencer/internal/config"
	"github.com/l2labs/rollup-sequencer/internal/disruptor"
	"github.com/l2labs/rollup-sequencer/internal/settlement"
	"github.com/l2labs/rollup-sequencer/internal/shardrouter"
	"github.com/l2labs/rollup-sequencer/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the sequencer YAML config")
	pubKey := flag.String("pubkey", "sequencer-local", "this sequencer instance's public identity")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := telemetry.NewRegistry(cfg.Telemetry, log)
	go registry.Run(ctx)
	defer registry.Close()

	checkpointEngine, err := checkpoint.NewEngine(cfg.Recovery, *pubKey, registry, log)
	if err != nil {
		log.Error("failed to start checkpoint engine", "error", err)
		os.Exit(1)
	}

	ring := disruptor.New(cfg.Disruptor, domainEventHandler(log), registry, log)
	defer func() { _ = ring.Shutdown(context.Background()) }()

	settlementClient := settlement.NewInMemoryClient(sha256.Sum256([]byte(*pubKey)))

	// bridgeBatcher is referenced by the OnAccept closure before it exists;
	// the closure only fires once Deposit/Withdraw is called, by which
	// point the variable below has been assigned.
	var bridgeBatcher *bridge.Batcher
	onAccept := func(_ *bridge.Operation) {
		if !checkpointEngine.RecordOp() {
			return
		}
		if _, err := checkpointEngine.Create(bridgeBatcher.CaptureState()); err != nil {
			log.Error("checkpoint create failed", "error", err)
			return
		}
		checkpointEngine.ResetCounter()
	}

	bridgeBatcher = bridge.New(cfg.Bridge, settlementClient, registry, log,
		bridge.WithEventPublisher(ring),
		bridge.WithOnAccept(onAccept),
	)
	defer bridgeBatcher.Close()

	if err := checkpointEngine.Restore(bridgeBatcher); err != nil {
		log.Warn("no checkpoint restored, starting from zero state", "error", err)
	}

	router, err := shardrouter.NewRouter(cfg.ShardRouter, log)
	if err != nil {
		log.Error("failed to start shard router", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Warn("shard router close failed", "error", err)
		}
	}()
	for _, sc := range cfg.ShardRouter.Shards {
		pool, err := shardrouter.NewPool(ctx, sc)
		if err != nil {
			log.Error("failed to open shard pool", "shard", sc.ShardID, "backend", sc.Backend, "error", err)
			os.Exit(1)
		}
		if err := router.RegisterPool(sc.ShardID, pool); err != nil {
			log.Error("failed to register shard pool", "shard", sc.ShardID, "error", err)
			os.Exit(1)
		}
	}
	go router.RunHealthProbe(ctx, 30*time.Second)

	httpServer := &http.Server{Addr: cfg.Telemetry.HTTPAddr, Handler: registry.Router()}
	go func() {
		log.Info("telemetry server listening", "addr", cfg.Telemetry.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("telemetry server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// domainEventHandler is the Disruptor's Handler plug-in point (spec §1
// scopes the real per-event business logic out of this system); it logs
// and succeeds.
func domainEventHandler(log *slog.Logger) disruptor.Handler {
	return func(_ context.Context, ev *disruptor.Event) (any, error) {
		log.Debug("domain event processed", "event", ev.ID)
		return nil, nil
	}
}

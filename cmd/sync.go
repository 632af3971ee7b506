package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlang/weftsync/internal/cancelx"
	"github.com/weftlang/weftsync/internal/config"
	"github.com/weftlang/weftsync/internal/detector"
	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
	"github.com/weftlang/weftsync/internal/publish"
	"github.com/weftlang/weftsync/internal/resolver"
	"github.com/weftlang/weftsync/internal/workqueue"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Watch the workspace and synchronize derived project state",
	Long: `Watch the configured paths for weft document changes and keep derived
project info up to date. Changes are debounced, affected projects (and
their dependents) are recomputed, and results are published only when
their checksum actually changed.

Examples:
  weftsync sync                           # Watch until interrupted
  weftsync sync --once                    # One full pass, then exit
  weftsync sync --publish-mode stream     # Stream frames instead of files`,
	RunE: runSync,
}

var syncOnce bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "Synchronize once and exit")
	syncCmd.Flags().String("publish-mode", "", "Publish mode (file, stream)")
	syncCmd.Flags().String("resolver-mode", "", "Resolver mode (local, remote)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if mode, _ := cmd.Flags().GetString("publish-mode"); mode != "" {
		cfg.Publish.Mode = mode
	}
	if mode, _ := cmd.Flags().GetString("resolver-mode"); mode != "" {
		cfg.Resolver.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: "text",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workspace := project.NewDirectoryWorkspace(cfg.Watch.Paths)
	if err := workspace.Load(); err != nil {
		return err
	}
	if len(workspace.Projects()) == 0 {
		return fmt.Errorf("no weft projects found under %v", cfg.Watch.Paths)
	}

	store := project.NewStore()

	res, cleanup, err := buildResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := publish.NewCollector()
	sink, err := buildSink(cfg, collector, logger)
	if err != nil {
		return err
	}

	updater := resolver.NewUpdater(store, workspace, res, sink, logger)
	defer updater.Close()

	queue := workqueue.NewBatchQueue(cfg.Sync.Window, updater.ProcessBatch, nil)
	defer queue.Close()

	det := detector.NewChangeDetector(store, workspace, queue, logger)
	det.Start()
	defer det.Close()

	// Seeding emits project-added and solution-opened records, which the
	// detector turns into the initial full synchronization.
	workspace.Seed(store)

	if syncOnce {
		return drainAndReport(ctx, queue, collector, logger)
	}

	watcher, err := detector.NewWatcher(store, workspace.Locate, cfg.Watch.Exclude, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()
	for _, path := range cfg.Watch.Paths {
		if err := watcher.AddRecursive(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
	watcher.Start(ctx)

	// Re-read the workspace after a quiet period so created or deleted
	// documents and project roots are picked up, then reconcile the store
	// with the fresh view. Bursts of records collapse to one rescan.
	rescan := cancelx.NewScheduler(ctx, cfg.Sync.RetryDelay)
	defer rescan.Close()
	rescanSub := store.Subscribe(project.HandlerFunc(func(rec project.ChangeRecord) {
		switch rec.Kind {
		case project.ChangeDocumentAdded, project.ChangeDocumentRemoved:
			_ = rescan.Schedule(ctx, func(context.Context) {
				if err := workspace.Load(); err != nil {
					logger.Warn(context.Background(), err, "workspace rescan failed")
					return
				}
				workspace.Resync(store)
			})
		}
	}))
	defer rescanSub.Unsubscribe()

	logger.Info(ctx, "synchronizing", "paths", fmt.Sprintf("%v", cfg.Watch.Paths),
		"window", cfg.Sync.Window.String(), "publish", cfg.Publish.Mode)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")
	queue.CancelPending()
	reportFailures(collector, logger)
	return nil
}

// drainAndReport waits for the seeded batch to finish, used by --once.
func drainAndReport(ctx context.Context, queue *workqueue.BatchQueue[project.Key, project.WorkItem], collector *publish.Collector, logger logging.Logger) error {
	deadline, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for queue.HasPending() {
		if err := queue.WaitForCurrentBatch(deadline); err != nil {
			return err
		}
		select {
		case <-deadline.Done():
			return deadline.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := queue.WaitForCurrentBatch(deadline); err != nil {
		return err
	}

	reportFailures(collector, logger)
	if collector.HasErrors() {
		return fmt.Errorf("%d project(s) failed to publish", len(collector.Errors()))
	}
	return nil
}

func reportFailures(collector *publish.Collector, logger logging.Logger) {
	for _, se := range collector.Errors() {
		logger.Error(context.Background(), se.Err, "publication failed",
			"project", se.Project.String(), "op", se.Op)
	}
}

func buildResolver(ctx context.Context, cfg *config.Config, logger logging.Logger) (resolver.MetadataResolver, func(), error) {
	local := resolver.NewLocalResolver(logger)
	if cfg.Resolver.Mode == config.ResolverModeLocal {
		return local, func() {}, nil
	}

	client, err := resolver.DialRPC(ctx, cfg.Resolver.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to resolver at %s: %w", cfg.Resolver.Endpoint, err)
	}
	cache, err := resolver.NewContentCache(cfg.Resolver.CacheSize)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	remote := resolver.NewRemoteResolver(client, cache, logger)
	return resolver.NewFallbackResolver(remote, local, logger), func() { _ = client.Close() }, nil
}

func buildSink(cfg *config.Config, collector *publish.Collector, logger logging.Logger) (resolver.Sink, error) {
	var inner publish.WriterSink
	switch cfg.Publish.Mode {
	case config.PublishModeFile:
		inner = publish.NewFileSink(logger)
	case config.PublishModeStream:
		inner = publish.NewStreamSink(&publish.WebSocketDialer{URL: cfg.Publish.Endpoint}, logger)
	default:
		return nil, fmt.Errorf("unknown publish mode %q", cfg.Publish.Mode)
	}
	return &publish.CollectingSink{Sink: inner, Collector: collector}, nil
}

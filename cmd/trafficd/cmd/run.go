package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexd/internal/bridgectl"
	"github.com/plexsphere/plexd/internal/control"
	"github.com/plexsphere/plexd/internal/jam"
	"github.com/plexsphere/plexd/internal/metrics"
	"github.com/plexsphere/plexd/internal/preemption"
	"github.com/plexsphere/plexd/internal/publisher"
	"github.com/plexsphere/plexd/internal/scheduler"
	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
	"github.com/plexsphere/plexd/internal/transport"
)

// drainTimeout is the maximum time for graceful shutdown.
const drainTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trafficd controller",
	Long: "Start the trafficd controller daemon. Loads the intersection topology,\n" +
		"connects to the sensor feed, and enters the primary control loop.",
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	// 1. Parse config.
	cfg, err := ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("trafficd run: %w", err)
	}

	// Apply CLI flag overrides.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// 2. Set up structured logger.
	logger := setupLogger(cfg.LogLevel)

	logger.Info("starting trafficd",
		"version", buildVersion,
		"topology_file", cfg.TopologyFile,
	)

	// 3. Load topology.
	top, err := topology.LoadFile(cfg.TopologyFile)
	if err != nil {
		return fmt.Errorf("trafficd run: load topology: %w", err)
	}
	if len(top.JamBlocked) > 0 {
		cfg.Jam.BlockedDirections = top.JamBlocked
	}

	// 4. Build sensor state and subsystems.
	state := sensorstate.New()
	jamDet := jam.New(cfg.Jam, logger)
	sched := scheduler.New(cfg.Scheduler, top, jamDet, time.Now(), logger)
	bridge := bridgectl.New(cfg.Bridge, top, logger)
	preempt := preemption.New(cfg.Preemption, top, logger)

	// 5. Build transport: inbound decoder/subscriber, outbound broadcaster.
	decoder := transport.NewDecoder(state, top, logger)
	sub := transport.NewSubscriber(cfg.Transport, decoder, logger)
	broadcaster := transport.NewBroadcaster(cfg.Transport, logger)
	pub := publisher.New(top, broadcaster, logger)

	// 6. Build the control loop.
	ctrl := control.New(cfg.Control, top, state, jamDet, sched, bridge, preempt, pub, logger)

	// 7. Build metrics, sourced from the controller.
	metricsMgr := metrics.NewManager(cfg.Metrics, ctrl, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("inbound subscriber stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := broadcaster.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("outbound broadcaster stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("control loop stopped", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsMgr.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("metrics manager stopped", "error", err)
			}
		}()
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down", "reason", ctx.Err())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All goroutines exited cleanly.
	case <-time.After(drainTimeout):
		logger.Warn("drain timeout exceeded, forcing exit")
	}

	logger.Info("trafficd stopped")
	return nil
}

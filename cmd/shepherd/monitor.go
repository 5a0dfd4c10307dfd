package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/shepherd/pkg/api"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/history"
	"github.com/cuemby/shepherd/pkg/inspect"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/notify"
	"github.com/cuemby/shepherd/pkg/orchestrator"
	"github.com/cuemby/shepherd/pkg/probe"
	"github.com/cuemby/shepherd/pkg/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor a fleet of worker nodes until every one succeeds or fails",
	Long: `Monitor polls every configured worker node on a fixed tick, drives
each through its sync lifecycle, and exits once the fleet reaches a
terminal state (or loops forever with --loop semantics from the config).

The process exits 0 only when every instance succeeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: jsonLogs})

		cfg, err := types.LoadConfig(configPath)
		if err != nil {
			return err
		}

		return runMonitor(*cfg)
	},
}

func init() {
	monitorCmd.Flags().StringP("config", "c", "shepherd.yaml", "Path to the config file")
	monitorCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	monitorCmd.Flags().Bool("json-logs", false, "Emit JSON logs instead of console output")
}

func runMonitor(cfg types.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels the polling loop between ticks; the loop still
	// writes its final snapshot before exiting
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Logger.Warn().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	prober := probe.NewJSONRPCProber(cfg.ProbeTimeout)

	var runtime inspect.Runtime
	if cfg.ContainerdSocket != "" {
		r, err := inspect.NewContainerdRuntime(cfg.ContainerdSocket, cfg.LogDir)
		if err != nil {
			return fmt.Errorf("failed to connect to containerd: %w", err)
		}
		defer r.Close()
		runtime = r
	}

	store := history.NewFileStore(cfg.HistoryPath)

	var archive orchestrator.Archive
	if cfg.ArchivePath != "" {
		a, err := history.NewBoltArchive(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer a.Close()
		archive = a
	}

	notifier := notify.NewWebhookNotifier(cfg.Webhook)
	broker := events.NewBroker()

	o := orchestrator.New(cfg, prober, runtime, notifier, store, archive, broker)

	if cfg.HTTPAddr != "" {
		server := api.NewServer(cfg.HTTPAddr, o.Snapshot)
		server.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Stop(shutdownCtx)
		}()
	}

	if cfg.GRPCAddr != "" {
		grpcServer := api.NewGRPCServer(cfg.GRPCAddr)
		if err := grpcServer.Start(); err != nil {
			return fmt.Errorf("failed to start gRPC health endpoint: %w", err)
		}
		defer grpcServer.Stop()

		// The orchestrator's own subscription updates its status cache
		// first, so FleetHealthy reflects the event being handled
		broker.SubscribeAll(func(e events.Event) {
			switch e.Type {
			case events.EventInstanceFailed, events.EventRunStarted:
				grpcServer.SetFleetHealthy(o.FleetHealthy())
			}
		})
	}

	allOK, err := o.Run(ctx)
	if err != nil {
		return err
	}
	if !allOK {
		return fmt.Errorf("one or more instances failed")
	}
	return nil
}

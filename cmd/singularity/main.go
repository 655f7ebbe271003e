package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sparkw/Singularity/pkg/config"
	"github.com/sparkw/Singularity/pkg/kvstore"
	"github.com/sparkw/Singularity/pkg/lbclient"
	"github.com/sparkw/Singularity/pkg/log"
	"github.com/sparkw/Singularity/pkg/machines"
	"github.com/sparkw/Singularity/pkg/metrics"
	"github.com/sparkw/Singularity/pkg/placement"
	"github.com/sparkw/Singularity/pkg/poller"
	"github.com/sparkw/Singularity/pkg/upstream"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "singularity",
	Short:   "Singularity placement and topology core",
	Long:    "Tracks worker node and rack lifecycles, evaluates rack-aware placement, and reconciles load-balancer upstreams against running tasks.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Singularity version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serveCmd.Flags().String("config", "", "Path to config file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the placement and reconciliation control loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := log.New(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogJSON,
		})

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		nodes := machines.NewNodeStore(store, cfg.Store.SlaveRoot, logger)
		racks := machines.NewRackStore(store, cfg.Store.RackRoot, logger)

		engine := placement.NewEngine(
			cfg.Mesos.RackIDAttributeKey,
			cfg.Mesos.DefaultRackID,
			nodes,
			racks,
			logger,
		)

		var pollers []*poller.Poller

		if cfg.Mesos.MasterURI != "" {
			master := placement.NewHTTPMasterClient(cfg.Mesos.MasterURI, cfg.LB.Timeout.Std())
			pollers = append(pollers, poller.New("resync", cfg.Intervals.Resync.Std(),
				func(ctx context.Context) error {
					roster, err := master.GetRoster(ctx)
					if err != nil {
						return err
					}
					return engine.LoadRacksFromMaster(roster)
				}, logger))
		}

		if cfg.LB.BaseURI != "" {
			lb := lbclient.New(cfg.LB.BaseURI, cfg.LB.Timeout.Std(), logger)
			checker := upstream.NewChecker(
				lb,
				upstream.NewKVTaskManager(store, cfg.Store.MetadataRoot),
				upstream.NewKVRequestManager(store, cfg.Store.MetadataRoot),
				upstream.NewKVDeployManager(store, cfg.Store.MetadataRoot),
				logger,
			)
			pollers = append(pollers, poller.New("upstream-sync", cfg.Intervals.UpstreamSync.Std(),
				checker.SyncUpstreams, logger))
		}

		pollers = append(pollers, poller.New("machine-gauges", cfg.Intervals.UpstreamSync.Std(),
			func(context.Context) error {
				if err := machines.ObserveGauges("node", nodes); err != nil {
					return err
				}
				return machines.ObserveGauges("rack", racks)
			}, logger))

		for _, p := range pollers {
			p.Start()
		}

		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.HTTPAddr, nil); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()

		logger.Info().Str("version", Version).Msg("singularity started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		for _, p := range pollers {
			p.Stop()
		}
		return nil
	},
}

func openStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendConsul:
		return kvstore.NewConsulStore(cfg.Store.ConsulAddr)
	default:
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return kvstore.NewBoltStore(cfg.DataDir)
	}
}

// cmd/domainmon/cmd/serve.go - long-running monitor and API
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/metrics"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/monitoring"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/notifications"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/web"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and HTTP API",
	Long: `Run the periodic domain monitor together with the HTTP API, websocket
feed and Prometheus endpoint until SIGINT or SIGTERM.

Domains from the configuration file are synced into the store on start
and, with --watch, whenever the file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload domains when the config file changes")
}

func serve(ctx context.Context, cfg *config.Config) error {
	logrus.WithFields(logrus.Fields{
		"config_file": configFile,
		"port":        cfg.Server.Port,
		"database":    cfg.Database.Type,
		"interval":    cfg.Monitoring.Interval,
		"workers":     cfg.Monitoring.Workers,
	}).Info("Starting domain monitor")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var collector *metrics.Collector
	if cfg.Prometheus.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
	}
	hub := web.NewHub(collector)

	observers := monitoring.Observers{hub}
	if collector != nil {
		observers = append(observers, collector)
	}
	monitor := monitoring.New(cfg.Monitoring, store, monitoring.WithObserver(observers))

	if err := monitor.SyncDomains(ctx, cfg.Domains); err != nil {
		return fmt.Errorf("sync domains: %w", err)
	}

	dispatcher, err := notifications.NewDispatcherFromConfig(cfg.Notifications)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	server := web.NewServer(cfg, store, monitor, dispatcher, collector, hub)

	if cfg.Monitoring.AutostartEnabled() {
		monitor.Start()
	}
	defer monitor.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.Database.ArchiveAfter > 0 {
		archiver := monitoring.NewAlertArchiver(store, cfg.Database.ArchiveAfter, time.Hour)
		g.Go(func() error {
			archiver.Run(ctx)
			return nil
		})
	}

	if serveWatch {
		watcher, err := config.NewWatcher(configFile, func(next *config.Config) {
			if err := monitor.SyncDomains(ctx, next.Domains); err != nil {
				logrus.WithError(err).Error("Failed to sync reloaded domains")
			}
		})
		if err != nil {
			logrus.WithError(err).Warn("Config watcher disabled")
		} else {
			g.Go(func() error {
				watcher.Run(ctx)
				return nil
			})
		}
	}

	err = g.Wait()
	logrus.Info("Domain monitor stopped")
	return err
}

// Command sbusd runs the software bus as a standalone daemon: it loads
// the mission configuration, wires the bus's command task onto its own
// pipe, starts the admin UDS channel and the metrics endpoint, and
// serves until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/command"
	"github.com/otus-sbus/sbus/internal/config"
	"github.com/otus-sbus/sbus/internal/log"
	"github.com/otus-sbus/sbus/internal/metrics"
	"github.com/otus-sbus/sbus/internal/reporting"
)

func main() {
	configPath := flag.String("config", "/etc/sbus/config.yml", "mission configuration file")
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		if loaded, err := config.Load(*configPath); err == nil {
			cfg = *loaded
		} else {
			fmt.Fprintf(os.Stderr, "sbusd: using defaults, failed to load %s: %v\n", *configPath, err)
		}
	}

	log.Init(cfg.Log)
	logger := log.Get()

	if err := os.MkdirAll(cfg.Reporting.FileDumpDir, 0755); err != nil {
		logger.WithError(err).Error("create file dump dir")
		os.Exit(1)
	}

	b := bus.New(cfg, logger)

	if cfg.Bootstrap.ManifestPath != "" {
		entries, err := config.LoadManifest(cfg.Bootstrap.ManifestPath)
		if err != nil {
			logger.WithError(err).Error("load subscription manifest")
			os.Exit(1)
		}
		if err := b.ApplyManifest(entries); err != nil {
			logger.WithError(err).Error("apply subscription manifest")
			os.Exit(1)
		}
	}

	maxMemAllowed := int64(cfg.Limits.OSQueueMaxDepth) * int64(cfg.Limits.MaxPipes) * 1024
	maxSubscriptionsAllowed := cfg.Limits.MaxMsgIDs * cfg.Limits.MaxDestPerPkt
	reporter := reporting.NewReporter(b, maxMemAllowed, cfg.Limits.OSQueueMaxDepth, cfg.Limits.MaxMsgIDs, maxSubscriptionsAllowed)

	var publisher reporting.Publisher = reporting.NewLogPublisher(logger)
	if cfg.Reporting.Kafka.Enabled {
		kafkaPub := reporting.NewKafkaAllSubsPublisher(cfg.Reporting.Kafka.Brokers, cfg.Reporting.Kafka.Topic, publisher)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	task := command.NewTask(b, reporter, publisher, cfg.Reporting.FileDumpDir, cfg.Limits.SubEntriesPerPkt, cfg.Limits.MissionSBMaxPipes)
	if err := task.AppInit(cfg.Node.AppName); err != nil {
		logger.WithError(err).Error("command task init failed")
		os.Exit(1)
	}
	reporter.WireSubReporting(publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := task.TaskMain(ctx); err != nil {
			logger.WithError(err).Error("command task stopped")
		}
	}()

	handler := command.NewCommandHandler(task)
	udsServer := command.NewUDSServer(cfg.Control.Socket, handler, logger)
	go func() {
		if err := udsServer.Start(ctx); err != nil {
			logger.WithError(err).Error("uds server stopped")
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	go m.Run(ctx, b, 5*time.Second)
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics); err != nil {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"socket": cfg.Control.Socket,
		"metrics": cfg.Metrics.Listen,
	}).Info("sbusd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	logger.Info("sbusd shutting down")
	cancel()
	udsServer.Stop()
}

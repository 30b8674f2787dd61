package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/pflag"

	"github.com/backhaul-io/backhaul/cmd/courier/agent"
	"github.com/backhaul-io/backhaul/cmd/courier/ledger"
	"github.com/backhaul-io/backhaul/cmd/courier/upload"
	"github.com/backhaul-io/backhaul/common/bootstrap"
	"github.com/backhaul-io/backhaul/common/config"
	"github.com/backhaul-io/backhaul/common/logger"
	"github.com/backhaul-io/backhaul/common/metrics"
	"github.com/backhaul-io/backhaul/common/stability"
)

func main() {
	configPath := pflag.StringP("config", "c", "courier.yaml", "path to courier config file")
	once := pflag.Bool("once", false, "run a single delivery cycle and exit")
	metricsPort := pflag.Int("metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")
	pflag.Parse()

	cfg, err := config.LoadCourier(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	components := bootstrap.Setup("courier", cfg.Log)
	defer components.Shutdown(context.Background())
	log := components.Logger

	if err := os.MkdirAll(cfg.WatchDir, 0o755); err != nil {
		log.Error("failed to create watch directory", "dir", cfg.WatchDir, "error", err)
		os.Exit(1)
	}

	led, err := ledger.Load(cfg.LedgerPath)
	if err != nil {
		log.Error("failed to load delivery ledger", "path", cfg.LedgerPath, "error", err)
		os.Exit(1)
	}
	log.Info("delivery ledger loaded", "path", cfg.LedgerPath, "tracked", led.Len())

	var courierMetrics metrics.CourierMetrics = metrics.Noop{}
	if cfg.Metrics.Enabled {
		courierMetrics = metrics.NewCourierProm("backhaul_courier")
		if *metricsPort > 0 {
			go serveMetrics(*metricsPort, log)
		}
	}

	uploader := upload.New(cfg.IngestURL, cfg.UploadTimeout.Std(), log,
		upload.WithProgress(progressLogger(log, cfg.Stream)),
	)

	deliveryAgent := agent.New(
		cfg.Stream,
		cfg.WatchDir,
		cfg.Extensions,
		led,
		uploader,
		stability.Options{
			Interval:    cfg.Stability.Interval.Std(),
			Consecutive: cfg.Stability.Consecutive,
			Timeout:     cfg.Stability.Timeout.Std(),
		},
		log,
		courierMetrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("courier starting",
		"stream", cfg.Stream,
		"watch", cfg.WatchDir,
		"ingest_url", cfg.IngestURL,
		"cycle_interval", cfg.CycleInterval.Std().String(),
	)

	runCycle(ctx, deliveryAgent, log)
	if *once {
		return
	}

	ticker := time.NewTicker(cfg.CycleInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("courier stopping")
			return
		case <-ticker.C:
			runCycle(ctx, deliveryAgent, log)
		}
	}
}

func runCycle(ctx context.Context, deliveryAgent *agent.Agent, log *logger.Logger) {
	report, err := deliveryAgent.RunCycle(ctx)
	if err != nil {
		log.Error("delivery cycle failed",
			"cycle_id", report.CycleID,
			"error", err,
		)
		return
	}
	log.Info("delivery cycle complete",
		"cycle_id", report.CycleID,
		"discovered", report.Discovered,
		"dropped", report.Dropped,
		"uploaded", report.Uploaded,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
}

// progressLogger logs upload progress every 64 MB for operator
// visibility on long transfers.
func progressLogger(log *logger.Logger, stream string) upload.Progress {
	const step = int64(64 << 20)
	var lastLogged int64
	return func(sent int64) {
		if sent-lastLogged >= step {
			lastLogged = sent
			log.Info("upload progress", "stream", stream, "bytes_sent", sent)
		}
	}
}

func serveMetrics(port int, log *logger.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), e); err != nil {
		log.Error("metrics server error", "error", err)
	}
}

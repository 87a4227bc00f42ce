package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/atmostream/internal/api/http"
	"github.com/i474232898/atmostream/internal/archive"
	"github.com/i474232898/atmostream/internal/config"
	"github.com/i474232898/atmostream/internal/convert"
	"github.com/i474232898/atmostream/internal/download"
	"github.com/i474232898/atmostream/internal/forecast"
	"github.com/i474232898/atmostream/internal/forecast/providers"
	"github.com/i474232898/atmostream/internal/logging"
	"github.com/i474232898/atmostream/internal/scheduler"
	"github.com/i474232898/atmostream/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to a YAML config file (or set ATMOSTREAM_CONFIG)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	sourceFlag := flag.String("source", "", "data source, EC or NOAA")
	modelFlag := flag.String("model", "", "model name, e.g. HRDPS_continental or GFS_0p25")
	outputFlag := flag.String("output", "", "output root directory")
	dayFlag := flag.String("day", "", "start day (YYYYMMDD), defaults to the earliest listed")
	cycleFlag := flag.String("cycle", "", "start cycle (HH), defaults to the earliest listed")
	variablesFlag := flag.StringSlice("variables", nil, "variables to download, comma separated")
	pollFlag := flag.Duration("poll-interval", 0, "wait between polls")
	convertFlag := flag.Bool("convert", false, "convert each completed cycle")
	deleteRawFlag := flag.Bool("delete-raw", true, "delete raw files after conversion")
	verifyFlag := flag.Bool("verify", true, "verify the start position against the catalog")
	sessionLogFlag := flag.Bool("session-log", true, "write a per-session log file under the output root")

	apiAddrFlag := flag.String("listen-addr", "", "status API listen address, empty disables it")
	metricsAddrFlag := flag.String("metrics-addr", "", "prometheus metrics listen address, empty disables it")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [download]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Streams forecast cycles of one model. With \"download\", fetches the start position once and exits.")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags win over file and environment, but only when given.
	changed := flag.CommandLine.Changed
	if changed("source") {
		cfg.Stream.Source = *sourceFlag
	}
	if changed("model") {
		cfg.Stream.Model = *modelFlag
	}
	if changed("output") {
		cfg.Stream.OutputRoot = *outputFlag
	}
	if changed("day") {
		cfg.Stream.StartDay = *dayFlag
	}
	if changed("cycle") {
		cfg.Stream.StartCycle = *cycleFlag
	}
	if changed("variables") {
		cfg.Stream.Variables = *variablesFlag
	}
	if changed("poll-interval") {
		cfg.Stream.PollInterval = *pollFlag
	}
	if changed("convert") {
		cfg.Stream.ConvertOnCompletion = *convertFlag
	}
	if changed("delete-raw") {
		cfg.Stream.DeleteRawAfterConvert = *deleteRawFlag
	}
	if changed("verify") {
		cfg.Stream.VerifyOnStart = *verifyFlag
	}
	if changed("session-log") {
		cfg.Stream.LoggingEnabled = *sessionLogFlag
	}
	if changed("listen-addr") {
		cfg.API.Address = *apiAddrFlag
	}
	if changed("metrics-addr") {
		cfg.API.MetricsAddress = *metricsAddrFlag
	}

	log := logging.New(*verboseFlag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := cfg.ResolveModel()
	if err != nil {
		return err
	}

	// Shared HTTP client for outbound catalog and download calls.
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	backoff := providers.BackoffConfig{
		MaxRetries:      cfg.HTTP.MaxRetries,
		InitialInterval: cfg.HTTP.InitialInterval,
		MaxInterval:     cfg.HTTP.MaxInterval,
	}
	clock := clockwork.NewRealClock()

	catalog := providers.NewClient(model.Name, httpClient, backoff)
	provider, err := providers.New(model, catalog, clock)
	if err != nil {
		return err
	}

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.Store.MaxHistory, cfg.Store.MaxAge)

	ctrlCfg := forecast.ControllerConfig{
		Logger:     log,
		Clock:      clock,
		Provider:   provider,
		Downloader: download.NewManager(log, catalog),
		Remover:    convert.NewGlobRemover(log),
		Store:      memStore,
		OutputRoot: cfg.Stream.OutputRoot,
		Start:      forecast.Cursor{Day: cfg.Stream.StartDay, Cycle: cfg.Stream.StartCycle},
		Stream:     cfg.StreamOptions(model),
	}
	if len(cfg.Convert.Command) > 0 {
		converter, err := convert.NewExecConverter(log, cfg.Convert.Command)
		if err != nil {
			return err
		}
		ctrlCfg.Converter = converter
	}
	if cfg.Archive.Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, log, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			EndpointURL:     cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		ctrlCfg.Archiver = archiver
	}

	ctrl, err := forecast.NewController(ctrlCfg)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if flag.Arg(0) == "download" {
		return downloadOnce(ctx, log, ctrl)
	}

	nowcastProviders, err := buildNowcastProviders(cfg, provider, httpClient, backoff, clock)
	if err != nil {
		return err
	}
	service := forecast.NewService(log, clock, memStore, nowcastProviders)

	// Scheduler that periodically refreshes nowcasts.
	sched := scheduler.New(log, cfg.Nowcast.RefreshInterval, service)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctrl.Start(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		return ctrl.Run(gctx)
	})

	if cfg.API.Address != "" {
		app := newApp(service)
		g.Go(func() error {
			log.Info("server: status API listening", "address", cfg.API.Address)
			return app.Listen(cfg.API.Address)
		})
		g.Go(func() error {
			<-gctx.Done()
			return app.ShutdownWithTimeout(shutdownTimeout)
		})
	}

	if cfg.API.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.API.MetricsAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Info("prometheus metrics server listening", "address", cfg.API.MetricsAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("stream: stopped")
	return err
}

func downloadOnce(ctx context.Context, log *slog.Logger, ctrl *forecast.Controller) error {
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	cur := ctrl.Cursor()
	n, err := ctrl.DownloadOnce(ctx, cur)
	if err != nil {
		return err
	}
	log.Info("download: done", "day", cur.Day, "cycle", cur.Cycle, "fetched", n)
	return nil
}

// buildNowcastProviders returns a provider per configured nowcast model,
// reusing the streamed model's provider. Without configured models only the
// streamed model is tracked.
func buildNowcastProviders(cfg *config.AppConfig, streamed forecast.Provider, client *http.Client,
	backoff providers.BackoffConfig, clock clockwork.Clock) ([]forecast.Provider, error) {
	if len(cfg.Nowcast.Models) == 0 {
		return []forecast.Provider{streamed}, nil
	}
	var out []forecast.Provider
	for _, name := range cfg.Nowcast.Models {
		if name == streamed.Model().Name {
			out = append(out, streamed)
			continue
		}
		model, err := forecast.LookupModel(name)
		if err != nil {
			return nil, &forecast.ConfigurationError{Field: "nowcast.models", Message: name, Cause: err}
		}
		p, err := providers.New(model, providers.NewClient(model.Name, client, backoff), clock)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newApp(service *forecast.Service) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "atmostream",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "atmostream",
		})
	})

	httpapi.RegisterRoutes(app, service)
	return app
}

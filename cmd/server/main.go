// Command server starts the honeypot HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
	"github.com/cmllr/CameraObscura/internal/observability/logging"
	"github.com/cmllr/CameraObscura/internal/routes"
	"github.com/cmllr/CameraObscura/internal/server"
	"github.com/cmllr/CameraObscura/internal/serverutil"
	"github.com/cmllr/CameraObscura/internal/webhook"
)

func main() {
	configPath := flag.String("config", config.DefaultFile, "path to the configuration file")
	routesPath := flag.String("routes", "", "path to the routes file (default: templates/<theme>/routes.json)")
	addr := flag.String("addr", "", "listen address override (default: http.host:http.port)")
	logLevel := flag.String("log-level", "info", "diagnostic log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "json", "diagnostic log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{Level: *logLevel, Format: *logFormat})

	if err := run(*configPath, *routesPath, *addr, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, routesPath, addr string, logger *slog.Logger) error {
	config.SetDefaultPath(configPath)
	store, err := config.Default()
	if err != nil {
		return err
	}

	theme := store.String("http", "template")
	if theme == "" {
		return fmt.Errorf("no template configured (http.template)")
	}

	if routesPath == "" {
		routesPath = store.Absolute(filepath.Join("templates", theme, "routes.json"))
	}
	table, err := routes.LoadFile(routesPath)
	if err != nil {
		return err
	}
	logger.Info("route table loaded", "routes", table.Len(), "file", routesPath)

	events, closeSinks, err := buildEventLogger(store, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	if addr == "" {
		addr = net.JoinHostPort(store.String("http", "host"), strconv.Itoa(store.Int("http", "port", 80)))
	}

	srv, err := server.New(server.Config{
		Addr:   addr,
		Store:  store,
		Table:  table,
		Events: events,
		Logger: logging.WithComponent(logger, "server"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events.Log(eventlog.EventSensorStarted, "Sensor started", false, "", nil)
	logger.Info("honeypot listening", "addr", addr, "sensor", store.String("honeypot", "sensor"))

	return serverutil.Run(ctx, serverutil.Config{Server: srv.HTTPServer()})
}

// buildEventLogger assembles the audit sinks from the log and webhook
// configuration sections.
func buildEventLogger(store *config.Store, logger *slog.Logger) (*eventlog.Logger, func(), error) {
	diag := logging.WithComponent(logger, "eventlog")
	events := eventlog.New(store.String("honeypot", "sensor"), diag)
	closeSinks := func() {}

	switch method := store.String("log", "method"); method {
	case "json", "":
		path := store.String("log", "path")
		if path == "" {
			return nil, nil, fmt.Errorf("log.path is required for the json log method")
		}
		timespan := time.Duration(store.Int("log", "timespan", 86400)) * time.Second
		events.AddSink(eventlog.NewFileSink(store.Absolute(path), timespan, store.Bool("log", "compress")))
	case "stdout":
		events.AddSink(eventlog.NewStdoutSink(nil))
	case "postgres":
		dsn := store.String("log", "dsn")
		if dsn == "" {
			return nil, nil, fmt.Errorf("log.dsn is required for the postgres log method")
		}
		sink, err := eventlog.NewPostgresSink(context.Background(), dsn)
		if err != nil {
			return nil, nil, err
		}
		events.AddSink(sink)
		closeSinks = sink.Close
	default:
		return nil, nil, fmt.Errorf("unsupported log method %q", method)
	}

	// Mirror to the console when requested, unless stdout already is the
	// primary sink.
	if store.Bool("honeypot", "stdout") && store.String("log", "method") != "stdout" {
		events.AddSink(eventlog.NewStdoutSink(nil))
	}

	if target := store.String("webhook", "target"); target != "" {
		flavour := store.String("webhook", "flavour")
		if flavour == "" {
			flavour = "discord"
		}
		var cache webhook.EnrichmentCache
		if cacheAddr := store.String("webhook", "cache"); cacheAddr != "" {
			cache = webhook.NewRedisCache(cacheAddr)
		}
		sink, err := webhook.New(flavour, webhook.Config{
			Target: target,
			Sensor: store.String("honeypot", "sensor"),
			Debug:  store.Bool("honeypot", "debug"),
			Cache:  cache,
		})
		if err != nil {
			return nil, nil, err
		}
		events.AddSink(webhook.NewDispatcher(sink, store.String("webhook", "exclude"),
			logging.WithComponent(logger, "webhook")))
	}

	return events, closeSinks, nil
}

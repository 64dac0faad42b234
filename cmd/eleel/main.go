// Command eleel is an Engine-API response-caching multiplexer: it sits
// between one controlling consensus client, a set of follower consensus
// clients, and a single execution engine, deduplicating and replaying
// Engine-API traffic so the engine only does the expensive work once.
//
// Usage:
//
//	eleel [flags]
//
// Flags:
//
//	--config                     path to a YAML config file
//	--listen-addr                HTTP listen address (default: ":8552")
//	--engine-url                 execution engine Engine-API URL
//	--controller-secret          JWT secret for the controller endpoint
//	--fcu-cache-policy           exact, loose, head_only (default: loose)
//	--verbosity                  log level 0-5 (default: 3)
//	--metrics                    enable Prometheus metrics
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigp/eleel/internal/builder"
	"github.com/sigp/eleel/internal/config"
	"github.com/sigp/eleel/internal/eeclient"
	"github.com/sigp/eleel/internal/elog"
	"github.com/sigp/eleel/internal/fcucache"
	"github.com/sigp/eleel/internal/forks"
	"github.com/sigp/eleel/internal/metrics"
	"github.com/sigp/eleel/internal/newpayloadcache"
	"github.com/sigp/eleel/internal/rpcserver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code, so it can be
// tested in isolation from os.Exit.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	level := elog.VerbosityToLevel(cfg.Verbosity)
	var logger *elog.Logger
	if cfg.LogFile != "" {
		logger = elog.NewFileLogger(level, cfg.LogFile, 100, 5, 28)
	} else {
		logger = elog.New(level, os.Stderr)
	}
	elog.SetDefault(logger)
	log := logger.Module("main")

	log.Info("eleel starting",
		"listen_addr", cfg.ListenAddr,
		"engine_url", cfg.EngineURL,
		"fcu_cache_policy", cfg.FcuCachePolicy,
	)

	srv, metricsSrv, err := buildServers(cfg, logger)
	if err != nil {
		log.Error("failed to build servers", "err", err)
		return 1
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
		}
	}()
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", "err", err)
		return 1
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info("shutdown complete")
	return 0
}

func buildServers(cfg config.Config, logger *elog.Logger) (*http.Server, *http.Server, error) {
	schedule := forks.MainnetSchedule()
	b := builder.New(schedule, cfg.PayloadCacheSize)

	// The EE client authenticates with the controller secret: eleel itself
	// is the "consensus client" from the execution engine's point of view.
	client := eeclient.New(cfg.EngineURL, []byte(cfg.ControllerSecret), nil)

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	fcuHandler := &fcucache.Handler{
		Cache:   fcucache.New(fcucache.Config{Policy: fcuPolicy(cfg.FcuCachePolicy), Capacity: cfg.FcuCacheSize}),
		Builder: b,
		Engine:  client,
		Metrics: m,
		FcuWait: time.Duration(cfg.FcuWaitMillis) * time.Millisecond,
	}
	npHandler := &newpayloadcache.Handler{
		Cache: newpayloadcache.New(newpayloadcache.Config{
			Capacity:      cfg.NewPayloadCacheSize,
			RecencyCutoff: cfg.NewPayloadRecencyCutoff,
		}),
		Engine:         client,
		Builder:        b,
		Metrics:        m,
		NewPayloadWait: time.Duration(cfg.NewPayloadWaitMillis) * time.Millisecond,
	}

	dispatcher := &rpcserver.Dispatcher{
		FcuHandler:        fcuHandler,
		NewPayloadHandler: npHandler,
		Proxy:             client,
		Metrics:           m,
	}

	clientSecrets := make(map[string][]byte, len(cfg.ClientSecrets))
	for _, cs := range cfg.ClientSecrets {
		clientSecrets[cs.ID] = []byte(cs.Secret)
	}

	server := &rpcserver.Server{
		Dispatcher:     dispatcher,
		ControllerAuth: rpcserver.NewControllerAuth([]byte(cfg.ControllerSecret)),
		ClientAuth:     rpcserver.NewClientAuth(clientSecrets),
		Logger:         logger.Module("rpcserver"),
	}

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	if cfg.MetricsEnabled {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: server.Handler()}
	}

	return httpSrv, metricsSrv, nil
}

func fcuPolicy(s string) fcucache.MatchPolicy {
	switch s {
	case "exact":
		return fcucache.Exact
	case "head_only":
		return fcucache.HeadOnly
	default:
		return fcucache.Loose
	}
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (config.Config, bool, int) {
	configPath := scanConfigFlag(args)

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return cfg, true, 2
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)

	fs := newFlagSet(&cfg)
	var configFlag string
	fs.StringVar(&configFlag, "config", configPath, "path to a YAML config file")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cfg, true, 2
	}
	if *showVersion {
		fmt.Println("eleel (dev)")
		return cfg, true, 0
	}
	return cfg, false, 0
}

// scanConfigFlag looks for "--config"/"-config" ahead of the real flag
// parse, since the config file's values become the defaults that the flag
// set itself is built against.
func scanConfigFlag(args []string) string {
	for i, a := range args {
		if a == "--config" || a == "-config" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return ""
}

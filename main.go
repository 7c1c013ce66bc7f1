package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	debugpkg "runtime/debug"
	"syscall"
	"time"
)

func main() {
	// Top-level panic handler: capture any unexpected panic to panic.log with
	// a stack trace.
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
		}
	}()

	configFlag := flag.String("config", defaultConfigFile, "path to config.toml")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fatal("config", err, "path", *configFlag)
	}
	if err := validateConfig(cfg); err != nil {
		fatal("config", err, "path", *configFlag)
	}

	logLevelName := cfg.LogLevel
	if *logLevelFlag != "" {
		logLevelName = *logLevelFlag
	}
	level, ok := parseLogLevel(logLevelName)
	if !ok {
		fatal("log level", fmt.Errorf("unknown log level %q", logLevelName))
	}
	setLogLevel(level)
	configureFileLogging(cfg.LogDir, *stdoutLogFlag || cfg.LogStdout)
	defer logger.Stop()

	logger.Info("starting pool api", "version", buildVersion, "build_time", buildTime, "coin", cfg.Coin, "listen", cfg.APIListen)
	logger.Info("sha256 implementation", "implementation", sha256ImplementationName())
	if ensureAPIPassword(&cfg) {
		logger.Warn("api.password not set; generated one for this run", "password", cfg.APIPassword)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		fatal("store", err, "driver", cfg.StoreDriver)
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.StoreDriver)

	daemon := newRPCClient("daemon", cfg.DaemonURL)
	wallet := newRPCClient("wallet", cfg.WalletURL)

	errs := &errorHistory{}
	state := newStatsState()
	charts := newChartHistory(cfg.ChartHistoryWindow, cfg.ChartMaxPoints, realClock{})
	broadcaster := newBroadcastManager(cfg, store, state)
	collector := newCollector(cfg, collectorOptions{
		Store:       store,
		Network:     daemonNetwork{rpc: daemon},
		Charts:      charts,
		Recorder:    charts,
		State:       state,
		Broadcaster: broadcaster,
		Clock:       realClock{},
		Version:     buildVersion,
		Errors:      errs,
	})

	var alerts alertNotifier = logAlerts{}
	discord, err := newDiscordAlerts(cfg)
	if err != nil {
		logger.Warn("discord alerts disabled", "error", err)
	} else if discord != nil {
		go discord.run(ctx)
		defer discord.close()
		alerts = discord
		logger.Info("discord alerts enabled", "channel_id", cfg.DiscordChannelID)
	}
	remotes := newRemoteModules(cfg, daemon, wallet)
	monitor := newMonitor(cfg, store, remotes, realClock{}, alerts)

	server := newStatusServer(cfg, statusServerDeps{
		Store:       store,
		State:       state,
		Broadcaster: broadcaster,
		Collector:   collector,
		Monitor:     monitor,
		Endpoints:   remotes,
		Charts:      charts,
		Errors:      errs,
		Clock:       realClock{},
	})

	collector.Start(ctx)
	started := monitor.StartAll(ctx)
	logger.Info("monitoring started", "modules", started)
	defer monitor.StopAll()

	httpServer := &http.Server{
		Addr:              cfg.APIListen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long-polls are held until the next cycle.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	go func() {
		logger.Info("api listening", "addr", cfg.APIListen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("api server error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-collector.Failed():
		logger.Error("collector stopped", "error", err)
	}
	collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api shutdown error", "error", err)
	}
}

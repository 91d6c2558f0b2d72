package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"repmgrd/internal/config"
	"repmgrd/internal/daemon"
	"repmgrd/pkg/cluster"
	"repmgrd/pkg/connsupervisor"
	"repmgrd/pkg/election"
	"repmgrd/pkg/eventrecorder"
	"repmgrd/pkg/executor"
	"repmgrd/pkg/failover"
	"repmgrd/pkg/logging"
	"repmgrd/pkg/metrics"
	"repmgrd/pkg/rolemonitor"
	"repmgrd/pkg/voting"
)

const version = "5.0.0-repmgrd"

func main() {
	var (
		configFile  = flag.String("f", "", "configuration file (required)")
		daemonize   = flag.Bool("d", false, "detach into the background")
		pidFile     = flag.String("p", "", "write own PID to this file")
		logLevel    = flag.String("L", "", "log level override (debug|info|warn|error)")
		verbose     = flag.Bool("v", false, "equivalent to -L debug")
		metricsAddr = flag.String("m", "", "address to serve /metrics on, e.g. :9191 (disabled when empty)")
		showVersion = flag.Bool("V", false, "print version and exit")
		showHelp    = flag.Bool("?", false, "print usage and exit")
	)
	flag.StringVar(configFile, "config-file", "", "configuration file (required)")
	flag.BoolVar(daemonize, "daemonize", false, "detach into the background")
	flag.StringVar(pidFile, "pid-file", "", "write own PID to this file")
	flag.StringVar(logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	flag.BoolVar(verbose, "verbose", false, "equivalent to -L debug")
	flag.StringVar(metricsAddr, "metrics-addr", "", "address to serve /metrics on, e.g. :9191 (disabled when empty)")
	flag.BoolVar(showVersion, "version", false, "print version and exit")
	flag.BoolVar(showHelp, "help", false, "print usage and exit")
	flag.Parse()

	if *showHelp {
		showUsage()
		return
	}
	if *showVersion {
		fmt.Printf("repmgrd %s\n", version)
		return
	}
	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "repmgrd: -f <config-file> is required")
		os.Exit(daemon.ExitBadConfig)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repmgrd: %v\n", err)
		os.Exit(daemon.ExitBadConfig)
	}
	cfg.ApplyOverrides(*logLevel, *verbose, nil)

	if *daemonize {
		if err := daemon.Daemonize(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "repmgrd: %v\n", err)
			os.Exit(daemon.ExitSysFailure)
		}
	}

	if err := daemon.CheckAndCreatePIDFile(*pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "repmgrd: %v\n", err)
		os.Exit(daemon.ExitBadPIDFile)
	}
	defer daemon.RemovePIDFile(*pidFile)

	logOut := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "repmgrd: open log file %s: %v\n", cfg.LogFile, err)
			os.Exit(daemon.ExitBadConfig)
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.NewJSONLogger(logOut, logging.ParseLevel(cfg.LogLevel)).
		With(logging.Component("repmgrd"), logging.NodeID(cfg.NodeID))

	logger.Info("starting", logging.String("version", version), logging.String("failover_mode", cfg.FailoverMode))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.Conninfo)
	if err != nil {
		logger.Error("failed to connect to local database", logging.Error(err))
		os.Exit(daemon.ExitSysFailure)
	}
	defer conn.Close(ctx)

	directory := cluster.NewNodeDirectory(conn)
	self, err := directory.GetSelf(ctx, cfg.NodeID)
	if err != nil {
		logger.Error("failed to load own node record", logging.Error(err))
		os.Exit(daemon.ExitSysFailure)
	}
	state := cluster.NewLocalState(self)

	metricsRegistry := metrics.DefaultRegistry()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, metricsRegistry, logger)
	}

	localSupervisor := connsupervisor.New(connsupervisor.PGXDialer{}, connsupervisor.DefaultConfig(), logger)
	upstreamSupervisor := connsupervisor.New(connsupervisor.PGXDialer{}, connsupervisor.DefaultConfig(), logger)

	selfVotes := voting.NewPGStore(conn)

	var bus *eventrecorder.Bus
	var events *eventrecorder.Recorder
	if cfg.EventBusAddr != "" {
		b, err := eventrecorder.NewBus(cfg.EventBusAddr)
		if err != nil {
			logger.Warn("failed to start event bus, continuing without it", logging.Error(err))
			events = eventrecorder.New(logger, nil)
		} else {
			bus = b
			events = eventrecorder.New(logger, b)
		}
	} else {
		events = eventrecorder.New(logger, nil)
	}

	engine := election.New(selfVotes, directory, election.PGXConnector{}, logger)

	failoverCfg := failover.DefaultConfig()
	failoverCfg.PromoteCommand = cfg.PromoteCommand
	if failoverCfg.PromoteCommand == "" {
		failoverCfg.PromoteCommand = cfg.ServicePromoteCommand
	}
	failoverCfg.FollowCommand = cfg.FollowCommand
	failoverCfg.PromoteDelay = cfg.PromoteDelay()
	if cfg.PrimaryResponseTimeout() > 0 {
		failoverCfg.WaitPrimaryTimeout = cfg.PrimaryResponseTimeout()
	}
	orchestrator := failover.New(directory, failover.PGXConnector{}, selfVotes, executor.ShellExecutor{}, events, failoverCfg, logger)

	monitorCfg := rolemonitor.DefaultConfig()
	monitorCfg.LogStatusInterval = cfg.LogStatusIntervalDuration()
	monitor := rolemonitor.New(state, localSupervisor, upstreamSupervisor, directory, selfVotes,
		engine, orchestrator, events, monitorCfg, logger, metricsRegistry)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, requesting reload")
				state.RequestReload()
			default:
				logger.Info("received shutdown signal", logging.String("signal", sig.String()))
				cancel()
				return
			}
		}
	}()

	logger.Info("entering monitor loop")
	monitor.Run(ctx)

	if bus != nil {
		bus.Close()
	}
	logger.Info("shut down")
}

func serveMetrics(addr string, registry *metrics.Registry, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("serving metrics", logging.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", logging.Error(err))
	}
}

func showUsage() {
	fmt.Printf(`repmgrd %s: repmgr replication monitoring and failover daemon

Usage: repmgrd -f <config-file> [OPTIONS]

Options:
  -f, --config-file FILE   configuration file (required)
  -d, --daemonize          detach into the background
  -p, --pid-file FILE      write own PID to this file
  -L, --log-level LEVEL    log level override (debug|info|warn|error)
  -v, --verbose            equivalent to -L debug
  -m, --metrics-addr ADDR  serve /metrics on ADDR, e.g. :9191
  -V, --version            print version and exit
  -?, --help               print this usage message
`, version)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/rtmon"
	"github.com/loykin/rtmon/internal/server"
)

const shutdownTimeout = 5 * time.Second

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := rtmon.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		logfile := flags.LogFile
		if logfile == "" {
			logfile = cfg.Server.LogFile
		}
		return daemonize(cfg.Server.PIDFile, logfile)
	}
	if flags.LogFile != "" {
		cfg.Server.LogFile = flags.LogFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, os.Stderr)
}

// serve runs the daemon until ctx is done, then shuts every listener and
// the monitor down.
func serve(ctx context.Context, cfg *rtmon.Config, stderr io.Writer) error {
	logger, logCloser, err := cfg.LoggerConfig().NewSlogger(stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	mon := rtmon.NewProcessMonitor(cfg.WakeSignal(), logger)

	if dsns := cfg.HistoryDSNs(); len(dsns) > 0 {
		sinks, err := rtmon.NewHistorySinks(dsns)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		mon.SetHistorySinks(sinks...)
		logger.Info("history enabled", "sinks", len(sinks))
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		if err := rtmon.RegisterMetricsDefault(); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
		metricsSrv = server.NewMetricsServer(cfg.Metrics.Listen)
		logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
	}

	var apiSrv *http.Server
	if cfg.Server.Listen != "" {
		apiSrv, err = listenHTTP(cfg.Server.Listen, rtmon.NewHandler(mon, cfg.Server.BasePath), logger)
		if err != nil {
			_ = mon.Shutdown(context.Background())
			return fmt.Errorf("http api: %w", err)
		}
		logger.Info("serving http api", "addr", apiSrv.Addr, "base", cfg.Server.BasePath)
	}

	var sock *rtmon.SocketServer
	if cfg.Server.Socket != "" {
		sock, err = rtmon.NewSocketServer(mon, cfg.Server.Socket, os.FileMode(cfg.Server.SocketMode), logger)
		if err != nil {
			if apiSrv != nil {
				_ = apiSrv.Close()
			}
			_ = mon.Shutdown(context.Background())
			return fmt.Errorf("control socket: %w", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if sock != nil {
		errs = append(errs, sock.Close())
	}
	if apiSrv != nil {
		errs = append(errs, apiSrv.Shutdown(sctx))
	}
	errs = append(errs, mon.Shutdown(sctx))
	if metricsSrv != nil {
		errs = append(errs, metricsSrv.Shutdown(sctx))
	}
	if err := removePidFile(cfg.Server.PIDFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// listenHTTP binds before serving so address errors surface here and ":0"
// resolves to the real port.
func listenHTTP(addr string, h http.Handler, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http api stopped", "error", err)
		}
	}()
	return srv, nil
}

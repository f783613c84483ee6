package rtmon

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/rtmon/internal/config"
	"github.com/loykin/rtmon/internal/history"
	"github.com/loykin/rtmon/internal/history/factory"
	"github.com/loykin/rtmon/internal/metrics"
	"github.com/loykin/rtmon/internal/monitor"
	"github.com/loykin/rtmon/internal/oracle"
	"github.com/loykin/rtmon/internal/rpc"
	iapi "github.com/loykin/rtmon/internal/server"
	"github.com/loykin/rtmon/internal/task"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Params = task.Params

type Info = task.Info

type Oracle = oracle.Oracle

type Handle = oracle.Handle

// Table is an in-memory Oracle for simulated processes.
type Table = oracle.Table

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Config = cfg.Config

type SocketServer = rpc.Server

var (
	ErrInvalidParameters     = task.ErrInvalidParameters
	ErrUnknownProcess        = task.ErrUnknownProcess
	ErrDuplicateRegistration = task.ErrDuplicateRegistration
	ErrNotRegistered         = task.ErrNotRegistered
	ErrCancelled             = task.ErrCancelled
	ErrProcessGone           = task.ErrProcessGone
	ErrClosed                = task.ErrClosed
)

// Monitor is a thin facade over internal/monitor.Monitor.
// It provides a stable public API for embedding.
type Monitor struct{ inner *monitor.Monitor }

// New returns a monitor that judges liveness with o. A nil logger uses
// slog.Default.
func New(o Oracle, logger *slog.Logger) *Monitor {
	return &Monitor{inner: monitor.New(o, logger)}
}

// NewProcessMonitor monitors host processes. wake is sent on every period
// boundary; zero sends nothing.
func NewProcessMonitor(wake syscall.Signal, logger *slog.Logger) *Monitor {
	return New(oracle.NewProcessOracle(wake), logger)
}

func NewTable(pids ...int32) *Table { return oracle.NewTable(pids...) }

func (m *Monitor) Register(p Params) error                             { return m.inner.Register(p) }
func (m *Monitor) Cancel(pid int32) error                              { return m.inner.Cancel(pid) }
func (m *Monitor) Wait(ctx context.Context, pid int32) (uint64, error) { return m.inner.Wait(ctx, pid) }
func (m *Monitor) List() []Info                                        { return m.inner.List() }
func (m *Monitor) Status(pid int32) (Info, error)                      { return m.inner.Status(pid) }
func (m *Monitor) Len() int                                            { return m.inner.Len() }
func (m *Monitor) Shutdown(ctx context.Context) error                  { return m.inner.Shutdown(ctx) }
func (m *Monitor) SetHistorySinks(sinks ...HistorySink)                { m.inner.SetHistorySinks(sinks...) }

func LoadConfig(path string) (*Config, error) {
	return cfg.LoadConfig(path)
}

// NewHistorySinks opens one sink per DSN.
func NewHistorySinks(dsns []string) ([]HistorySink, error) { return factory.NewSinks(dsns) }

// NewHandler returns the HTTP API as a handler to mount in another server.
func NewHandler(m *Monitor, basePath string) http.Handler {
	return iapi.NewRouter(m.inner, basePath).Handler()
}

// NewHTTPServer starts an HTTP server exposing the API for the given monitor.
func NewHTTPServer(addr, basePath string, m *Monitor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// NewSocketServer starts the JSON-RPC control socket at path.
func NewSocketServer(m *Monitor, path string, mode os.FileMode, logger *slog.Logger) (*SocketServer, error) {
	s := rpc.NewServer(m.inner, path, mode, logger)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves the registered collectors.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

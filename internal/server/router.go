package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/rtmon/internal/metrics"
	"github.com/loykin/rtmon/internal/monitor"
	"github.com/loykin/rtmon/internal/task"
)

// Router provides embeddable HTTP handlers for the monitor.
// Endpoints:
//
//	POST   {basePath}/tasks       body: {"pid":..,"c":..,"t":..}
//	DELETE {basePath}/tasks/:pid
//	GET    {basePath}/tasks
//	GET    {basePath}/tasks/:pid
//	GET    {basePath}/healthz
//
// Waiting for the next period is only offered on the control socket,
// which can identify the calling process. basePath may be empty or start
// with '/'; no trailing slash.
type Router struct {
	mon      *monitor.Monitor
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/tasks.
func NewRouter(mon *monitor.Monitor, basePath string) *Router {
	return &Router{mon: mon, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/tasks", r.handleRegister)
	group.GET("/tasks", r.handleList)
	group.GET("/tasks/:pid", r.handleStatus)
	group.DELETE("/tasks/:pid", r.handleCancel)
	group.GET("/healthz", r.handleHealth)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mon *monitor.Monitor) (*http.Server, error) {
	r := NewRouter(mon, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewMetricsServer serves /metrics on addr with its own mux.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type healthResp struct {
	OK    bool `json:"ok"`
	Tasks int  `json:"tasks"`
}

func (r *Router) handleRegister(c *gin.Context) {
	var p task.Params
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error(), Kind: task.KindInvalidParameters})
		return
	}
	if p.PID <= 0 {
		// there is no caller identity to stand in for pid 0 over HTTP
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "pid must be positive", Kind: task.KindInvalidParameters})
		return
	}
	if err := r.mon.Register(p); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCancel(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	if err := r.mon.Cancel(pid); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mon.List())
}

func (r *Router) handleStatus(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	info, err := r.mon.Status(pid)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthResp{OK: true, Tasks: r.mon.Len()})
}

func pidParam(c *gin.Context) (int32, bool) {
	pid, err := parsePID(c.Param("pid"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error(), Kind: task.KindInvalidParameters})
		return 0, false
	}
	return pid, true
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error(), Kind: task.KindOf(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrUnknownProcess), errors.Is(err, task.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, task.ErrDuplicateRegistration):
		return http.StatusConflict
	case errors.Is(err, task.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

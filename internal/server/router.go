package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ktrade/sentinel/internal/heartbeat"
	"github.com/ktrade/sentinel/internal/metrics"
	"github.com/ktrade/sentinel/internal/store"
	"github.com/ktrade/sentinel/internal/supervisor"
)

// Router exposes the read-only operational surface:
//
//	GET /status    process state, heartbeat classification and age
//	GET /runs      recent optimization runs (query: limit, default 20)
//	GET /metrics   prometheus exposition
//
// It never mutates anything; control stays on the CLI.
type Router struct {
	monitor *heartbeat.Monitor
	sup     *supervisor.Supervisor
	st      store.Store
}

func NewRouter(monitor *heartbeat.Monitor, sup *supervisor.Supervisor, st store.Store) *Router {
	return &Router{monitor: monitor, sup: sup, st: st}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatus)
	g.GET("/runs", r.handleRuns)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	ProcessState string  `json:"process_state"`
	Heartbeat    string  `json:"heartbeat"`
	HeartbeatAge float64 `json:"heartbeat_age_seconds,omitempty"`
	LastBeat     string  `json:"last_beat,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	now := time.Now()
	resp := statusResp{
		ProcessState: r.sup.State().String(),
		Heartbeat:    r.monitor.Classify(now).String(),
	}
	if last, ok := r.monitor.Last(); ok {
		resp.HeartbeatAge = now.Sub(last).Seconds()
		resp.LastBeat = last.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

type runResp struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	Phases     string `json:"phases"`
	Changes    string `json:"changes"`
	ReportPath string `json:"report_path"`
	Outcome    string `json:"outcome"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func (r *Router) handleRuns(c *gin.Context) {
	limit := 20
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := r.st.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	out := make([]runResp, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResp{
			ID:         run.ID,
			Date:       run.Date.UTC().Format("2006-01-02"),
			Phases:     run.Phases,
			Changes:    run.ChangesJSON,
			ReportPath: run.ReportPath,
			Outcome:    run.Outcome,
			StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

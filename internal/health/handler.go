package health

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"mx-orderdesk/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const dependencyTimeout = time.Second

type Handler struct {
	pool        *pgxpool.Pool
	rdb         *redis.Client
	startedAt   time.Time
	httpAddr    string
	internalTok string
}

func NewHandler(pool *pgxpool.Pool, rdb *redis.Client, startedAt time.Time, httpAddr, internalToken string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:        pool,
		rdb:         rdb,
		startedAt:   start,
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
	}
}

type dependencyStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at"`
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	UptimeSec int64          `json:"uptime_sec"`
	Uptime    string         `json:"uptime"`
	Database  dependencyStat `json:"database"`
	Cache     dependencyStat `json:"cache"`
}

type poolStats struct {
	TotalConns        int32 `json:"total_conns"`
	IdleConns         int32 `json:"idle_conns"`
	AcquiredConns     int32 `json:"acquired_conns"`
	ConstructingConns int32 `json:"constructing_conns"`
	MaxConns          int32 `json:"max_conns"`
	AcquireCount      int64 `json:"acquire_count"`
	EmptyAcquireCount int64 `json:"empty_acquire_count"`
	AcquireDurationMs int64 `json:"acquire_duration_ms"`
}

type fullResponse struct {
	Status     string         `json:"status"`
	Timestamp  string         `json:"timestamp"`
	UptimeSec  int64          `json:"uptime_sec"`
	Uptime     string         `json:"uptime"`
	HTTPAddr   string         `json:"http_addr"`
	PID        int            `json:"pid"`
	Hostname   string         `json:"hostname"`
	GoVersion  string         `json:"go_version"`
	Goroutines int            `json:"goroutines"`
	AllocBytes uint64         `json:"alloc_bytes"`
	SysBytes   uint64         `json:"sys_bytes"`
	NumGC      uint32         `json:"num_gc"`
	Database   dependencyStat `json:"database"`
	Cache      dependencyStat `json:"cache"`
	Pool       poolStats      `json:"pool"`
	Version    string         `json:"version"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) requireInternalToken(w http.ResponseWriter, r *http.Request) bool {
	if h.internalTok == "" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if !secureTokenEqual(provided, h.internalTok) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
		return false
	}
	return true
}

func (h *Handler) checkDB(ctx context.Context) dependencyStat {
	if h.pool == nil {
		return dependencyStat{Error: "pool is not configured", CheckedAt: time.Now().UTC().Format(time.RFC3339)}
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	err := h.pool.Ping(pingCtx)
	cancel()
	out := dependencyStat{
		PingMs:    time.Since(start).Milliseconds(),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Reachable = true
	}
	return out
}

func (h *Handler) checkCache(ctx context.Context) dependencyStat {
	if h.rdb == nil {
		return dependencyStat{Error: "redis is not configured", CheckedAt: time.Now().UTC().Format(time.RFC3339)}
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	err := h.rdb.Ping(pingCtx).Err()
	cancel()
	out := dependencyStat{
		PingMs:    time.Since(start).Milliseconds(),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Reachable = true
	}
	return out
}

// Live does not touch dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready pings Postgres and Redis. The database is the authority for orders,
// so an unreachable database means 503; an unreachable cache only degrades
// the status string since the service can still serve from the durable log.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.checkDB(r.Context())
	cache := h.checkCache(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !cache.Reachable {
		status = "degraded"
	}
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Database:  db,
		Cache:     cache,
	})
}

// Full returns process diagnostics and is protected by X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}

	now := time.Now().UTC()
	uptime := h.uptime(now)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	db := h.checkDB(r.Context())
	cache := h.checkCache(r.Context())

	pool := poolStats{}
	if h.pool != nil {
		stat := h.pool.Stat()
		pool = poolStats{
			TotalConns:        stat.TotalConns(),
			IdleConns:         stat.IdleConns(),
			AcquiredConns:     stat.AcquiredConns(),
			ConstructingConns: stat.ConstructingConns(),
			MaxConns:          stat.MaxConns(),
			AcquireCount:      stat.AcquireCount(),
			EmptyAcquireCount: stat.EmptyAcquireCount(),
			AcquireDurationMs: stat.AcquireDuration().Milliseconds(),
		}
	}

	version := ""
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		version = strings.TrimSpace(info.Main.Version)
	}

	host := ""
	if hn, err := os.Hostname(); err == nil {
		host = hn
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	httputil.WriteJSON(w, httpStatus, fullResponse{
		Status:     status,
		Timestamp:  now.Format(time.RFC3339),
		UptimeSec:  int64(uptime.Seconds()),
		Uptime:     uptime.String(),
		HTTPAddr:   h.httpAddr,
		PID:        os.Getpid(),
		Hostname:   host,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		AllocBytes: mem.Alloc,
		SysBytes:   mem.Sys,
		NumGC:      mem.NumGC,
		Database:   db,
		Cache:      cache,
		Pool:       pool,
		Version:    version,
	})
}

// Metrics exposes Prometheus text metrics and is protected by X-Internal-Token.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}

	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.checkDB(r.Context())
	cache := h.checkCache(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	dbUp := 0
	if db.Reachable {
		dbUp = 1
	}
	cacheUp := 0
	if cache.Reachable {
		cacheUp = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "# HELP orderdesk_up Service process is running.\n")
	_, _ = fmt.Fprintf(w, "# TYPE orderdesk_up gauge\n")
	_, _ = fmt.Fprintf(w, "orderdesk_up 1\n")

	_, _ = fmt.Fprintf(w, "# HELP orderdesk_uptime_seconds Service uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE orderdesk_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "orderdesk_uptime_seconds %d\n", int64(uptime.Seconds()))

	_, _ = fmt.Fprintf(w, "# HELP orderdesk_db_up Database ping status (1=ok,0=down).\n")
	_, _ = fmt.Fprintf(w, "# TYPE orderdesk_db_up gauge\n")
	_, _ = fmt.Fprintf(w, "orderdesk_db_up %d\n", dbUp)
	_, _ = fmt.Fprintf(w, "orderdesk_db_ping_milliseconds %d\n", db.PingMs)

	_, _ = fmt.Fprintf(w, "# HELP orderdesk_cache_up Redis ping status (1=ok,0=down).\n")
	_, _ = fmt.Fprintf(w, "# TYPE orderdesk_cache_up gauge\n")
	_, _ = fmt.Fprintf(w, "orderdesk_cache_up %d\n", cacheUp)
	_, _ = fmt.Fprintf(w, "orderdesk_cache_ping_milliseconds %d\n", cache.PingMs)

	_, _ = fmt.Fprintf(w, "# HELP orderdesk_go_goroutines Number of goroutines.\n")
	_, _ = fmt.Fprintf(w, "# TYPE orderdesk_go_goroutines gauge\n")
	_, _ = fmt.Fprintf(w, "orderdesk_go_goroutines %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(w, "orderdesk_go_mem_alloc_bytes %d\n", mem.Alloc)
	_, _ = fmt.Fprintf(w, "orderdesk_go_mem_sys_bytes %d\n", mem.Sys)
	_, _ = fmt.Fprintf(w, "orderdesk_go_gc_count %d\n", mem.NumGC)

	if h.pool != nil {
		stat := h.pool.Stat()
		_, _ = fmt.Fprintf(w, "# HELP orderdesk_db_pool_total_conns Current total DB pool connections.\n")
		_, _ = fmt.Fprintf(w, "# TYPE orderdesk_db_pool_total_conns gauge\n")
		_, _ = fmt.Fprintf(w, "orderdesk_db_pool_total_conns %d\n", stat.TotalConns())
		_, _ = fmt.Fprintf(w, "orderdesk_db_pool_idle_conns %d\n", stat.IdleConns())
		_, _ = fmt.Fprintf(w, "orderdesk_db_pool_acquired_conns %d\n", stat.AcquiredConns())
		_, _ = fmt.Fprintf(w, "orderdesk_db_pool_max_conns %d\n", stat.MaxConns())
		_, _ = fmt.Fprintf(w, "orderdesk_db_pool_acquire_count %d\n", stat.AcquireCount())
	}
}

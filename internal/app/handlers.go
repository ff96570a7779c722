package app

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/large-farva/ldsentinel/internal/cache"
)

// Handler returns the status API routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/cache", a.handleCache)
	mux.HandleFunc("/api/resend", a.handleResend)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.Handle("/ws", a.hub.Handler())
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := a.monitor.Snapshot()
	serials := a.fetcher.Last()

	resp := map[string]any{
		"name":           "ldsentinel",
		"state":          a.State(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"presence":       snap.Presence(),
		"fetch_failed":   snap.FetchFailed,
		"detection": map[string]any{
			"method": a.cfg.Detection.Method,
			"target": describeChecker(a.checker),
		},
		"serials":    serials,
		"collector":  a.cfg.Network.CollectorURL(),
		"delivery":   a.engine.Stats(),
		"ws_clients": a.hub.Clients(),
	}
	if snap.LastConnected != nil {
		resp["last_connected"] = snap.LastConnected
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   a.configPath,
		"config": a.cfg,
	})
}

func (a *App) handleCache(w http.ResponseWriter, _ *http.Request) {
	c := a.cfg.Cache
	resp := map[string]any{
		"path":            c.Path,
		"entries":         a.queue.EstimatedCount(),
		"max_entries":     c.MaxEntries,
		"max_retries":     c.MaxRetries,
		"retry_period_ms": c.RetryPeriodMs,
	}
	if c.Path != cache.MemoryPath {
		if info, err := os.Stat(c.Path); err == nil {
			resp["size_bytes"] = info.Size()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := a.engine.ResendOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"dispatched": n,
		"queued":     a.queue.EstimatedCount(),
	})
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]any{
		"logs": a.logs.Recent(r.URL.Query().Get("level"), limit),
	})
}

func describeChecker(c any) string {
	if s, ok := c.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

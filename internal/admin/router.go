// Package admin exposes a running tunnel server over HTTP: liveness,
// session and worker-pool views, and the Prometheus registry.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/pool"
	"github.com/danmuck/sectun/internal/session"
)

// Source is the read-only server surface the admin routes query.
// *server.Server satisfies it.
type Source interface {
	Running() bool
	SessionCount() int
	Sessions() []session.Info
	PoolStats() pool.Stats
}

// SessionView is the JSON form of session.Info.
type SessionView struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	PeerAddress  string    `json:"peer_address"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	BytesIn      uint64    `json:"bytes_in"`
	BytesOut     uint64    `json:"bytes_out"`
	Payloads     uint64    `json:"payloads"`
	KeepAlives   uint64    `json:"keepalives"`
}

func viewOf(info session.Info) SessionView {
	return SessionView{
		ID:           info.ID,
		Token:        info.Token,
		PeerAddress:  info.PeerAddress,
		State:        info.State.String(),
		CreatedAt:    info.CreatedAt,
		LastActivity: info.LastActivity,
		BytesIn:      info.BytesIn,
		BytesOut:     info.BytesOut,
		Payloads:     info.Payloads,
		KeepAlives:   info.KeepAlives,
	}
}

type PoolView struct {
	Workers   int    `json:"workers"`
	Idle      int    `json:"idle"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Panics    uint64 `json:"panics"`
}

// NewRouter builds the admin engine. metrics may be nil, in which case
// /metrics is not mounted.
func NewRouter(src Source, metrics *observability.Metrics, logger zerolog.Logger) *gin.Engine {
	startedAt := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(metrics.RequestMetrics())
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if !src.Running() {
			status, code = "stopped", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"uptime":   time.Since(startedAt).String(),
			"sessions": src.SessionCount(),
			"service":  "tunneld",
		})
	})

	r.GET("/sessions", func(c *gin.Context) {
		infos := src.Sessions()
		out := make([]SessionView, 0, len(infos))
		for _, info := range infos {
			out = append(out, viewOf(info))
		}
		c.JSON(http.StatusOK, gin.H{"count": len(out), "sessions": out})
	})

	r.GET("/sessions/:token", func(c *gin.Context) {
		token := c.Param("token")
		for _, info := range src.Sessions() {
			if info.Token == token {
				c.JSON(http.StatusOK, viewOf(info))
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	})

	r.GET("/pool", func(c *gin.Context) {
		stats := src.PoolStats()
		c.JSON(http.StatusOK, PoolView{
			Workers:   stats.Workers,
			Idle:      stats.Idle,
			Queued:    stats.Queued,
			Submitted: stats.Submitted,
			Completed: stats.Completed,
			Panics:    stats.Panics,
		})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return r
}

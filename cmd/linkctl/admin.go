package main

import (
	"net/http"
	"time"

	"github.com/danmuck/crosslink/internal/link"
	"github.com/danmuck/crosslink/internal/memnet"
	"github.com/danmuck/crosslink/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var startedAt = time.Now()

type contextView struct {
	Window string `json:"window"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
	Closed bool   `json:"closed"`
}

func newAdminRouter(n *memnet.Network, sys *link.System) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger.With().Str("component", "admin").Logger()))
	r.Use(observability.RequestMetricsMiddleware("linkctl"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(startedAt).String(),
			"service":  "linkctl",
			"domain":   sys.Domain(),
			"contexts": len(n.Contexts()),
		})
	})
	r.GET("/contexts", func(c *gin.Context) {
		records := sys.Registry.Snapshot()
		out := make([]contextView, 0, len(records))
		for _, rec := range records {
			out = append(out, contextView{
				Window: string(rec.Window.ID()),
				Name:   rec.Name,
				Domain: rec.Domain,
				Closed: sys.IsClosed(rec.Window),
			})
		}
		c.JSON(http.StatusOK, gin.H{"contexts": out})
	})
	r.GET("/bridges", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bridges": sys.Bridges.Bridges()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

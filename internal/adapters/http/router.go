package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Relay/internal/adapters/ipc"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ConnHeader lets a process pick its own connection id for log correlation.
const ConnHeader = "X-Relay-Conn"

const roomsTimeout = 2 * time.Second

// RoomLister is the read side of the router.
type RoomLister interface {
	Rooms(ctx context.Context) ([]domain.RoomInfo, error)
}

func ConnIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ConnHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("conn_id", id)
		c.Header(ConnHeader, id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *ipc.Controller, rooms RoomLister, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), roomsTimeout)
		defer cancel()
		list, err := rooms.Rooms(rctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("list rooms")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": list})
	})

	api.GET("/ws/mailbox", ConnIDMiddleware(), func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("conn", c.GetString("conn_id")).Msg("ws mailbox endpoint hit")
		ctl.Handle(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

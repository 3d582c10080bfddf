package chongbot

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
)

const pprofPrefix = "/debug"

// API is the health/status HTTP server that runs alongside the bot.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	bot        *ChongBot
}

// newAPI builds the gin engine, routes, and HTTP server.
func newAPI(b *ChongBot, config *APIConfig) (*API, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		bot:    b,
		logger: b.logger.With(loggerNameKey, "api"),
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}

	r.Use(
		gin.Recovery(),
		api.loggingMiddleware(),
		cors.New(corsConfig),
	)

	r.GET("/", api.statusHandler)
	r.GET("/healthz", api.healthCheck)

	if config.EnablePprof {
		ginPprof.Register(r, pprofPrefix)
	}

	return api, nil
}

// Serve listens and serves until the server is shut down.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.Info("api server listening", "listen", a.config.Listen)
	return a.httpServer.Serve(a.listener)
}

type statusResponse struct {
	Status           string    `json:"status"`
	Bot              string    `json:"bot"`
	Uptime           string    `json:"uptime"`
	DiscordConnected bool      `json:"discord_connected"`
	NextRaidCheck    time.Time `json:"next_raid_check"`
}

func (a *API) statusHandler(c *gin.Context) {
	c.JSON(
		http.StatusOK, statusResponse{
			Status:           "ok",
			Bot:              "ChongBot",
			Uptime:           time.Since(a.bot.startedAt).Round(time.Second).String(),
			DiscordConnected: a.bot.discord.connected.Load(),
			NextRaidCheck:    a.bot.NextScheduledRun(),
		},
	)
}

// healthCheck reports gateway connectivity: 200 while connected, 503
// otherwise, so a supervisor can restart a wedged bot.
func (a *API) healthCheck(c *gin.Context) {
	connected := a.bot.discord.connected.Load()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	c.JSON(
		status, gin.H{
			"discord_connected": connected,
			"connects":          a.bot.discord.metricConnects.Load(),
			"disconnects":       a.bot.discord.metricDisconnects.Load(),
		},
	)
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		a.logger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
			"duration", latency,
			slog.Group(
				"response",
				"status_code", c.Writer.Status(),
				"body_size", c.Writer.Size(),
			),
		)
	}
}

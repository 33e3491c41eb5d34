// Package api is the HTTP surface: an inbound trigger webhook, status
// and risk endpoints, and a websocket stream of engine events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/database"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/orchestrator"
)

// TradeHistory serves journal rows. Nil when the journal is disabled.
type TradeHistory interface {
	RecentTrades(ctx context.Context, accountID string, limit int) ([]database.TradeRecord, error)
}

// Server wraps the gin router and the HTTP listener.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	supervisor *orchestrator.Supervisor
	history    TradeHistory
	bus        *events.Bus
	hub        *WSHub
	cfg        config.ServerConfig
	logger     zerolog.Logger
}

func NewServer(cfg config.ServerConfig, supervisor *orchestrator.Supervisor, history TradeHistory, bus *events.Bus, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		supervisor: supervisor,
		history:    history,
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With().Str("component", "api").Logger(),
	}
	s.hub = NewWSHub(s.logger)
	go s.hub.Run()
	bus.SubscribeAll(func(event events.Event) {
		s.hub.BroadcastEvent(event)
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	apiGroup := s.router.Group("/api")
	{
		apiGroup.POST("/webhook", s.handleWebhook)
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/accounts/:id/risk", s.handleAccountRisk)
		apiGroup.GET("/accounts/:id/trades", s.handleAccountTrades)
	}
}

// Start runs the listener in a goroutine and returns immediately.
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server stopped")
		}
	}()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func splitOrigins(csv string) []string {
	parts := strings.Split(csv, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

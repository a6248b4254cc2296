// Package api exposes the bot manager over HTTP: lifecycle control,
// per-bot status and trades, risk state, and aggregated metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crypto-trading-bot/internal/bot"
	"crypto-trading-bot/internal/database"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/runner"
)

// BotSpec is the payload for creating a bot over the API.
type BotSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Class       string `json:"class" binding:"required"`
	Description string `json:"description"`
	Symbol      string `json:"symbol" binding:"required"`
	Interval    string `json:"interval" binding:"required"`
	// Mode selects the feed: mock, historical or live. Empty falls
	// back to the server's default.
	Mode string `json:"mode"`
	// InitialBalance seeds the bot's portfolio; zero uses the trading
	// default.
	InitialBalance float64            `json:"initial_balance"`
	Parameters     map[string]float64 `json:"parameters"`
}

// BotFactory builds a ready-to-run runner from a spec. Wiring feeds,
// portfolios and risk rules stays with the caller.
type BotFactory func(spec BotSpec) (*runner.Runner, error)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowOrigins   []string
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	manager    *bot.Manager
	factory    BotFactory
	repo       *database.Repository // nil when persistence is disabled
	config     ServerConfig
	log        *logging.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, manager *bot.Manager, factory BotFactory, repo *database.Repository, log *logging.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:  router,
		manager: manager,
		factory: factory,
		repo:    repo,
		config:  config,
		log:     log.WithComponent("api"),
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bots := s.router.Group("/api/bots")
	{
		bots.GET("", s.handleListBots)
		bots.POST("", s.handleCreateBot)
		bots.DELETE("/:id", s.handleDeleteBot)
		bots.POST("/:id/start", s.handleStartBot)
		bots.POST("/:id/stop", s.handleStopBot)
		bots.POST("/:id/kill", s.handleKillBot)
		bots.GET("/:id/status", s.handleBotStatus)
		bots.GET("/:id/trades", s.handleBotTrades)
		bots.GET("/:id/orders", s.handleBotOrders)
		bots.GET("/:id/risk", s.handleBotRisk)
	}

	s.router.GET("/api/metrics/global", s.handleGlobalMetrics)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crypto-trading-bot/internal/database"
	"crypto-trading-bot/internal/runner"
)

// handleHealth returns server liveness and database reachability.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	dbStatus := "disabled"
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.HealthCheck(ctx); err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		} else {
			dbStatus = "healthy"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListBots returns per-bot reports in registration order.
func (s *Server) handleListBots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bots": s.manager.Status()})
}

// handleCreateBot builds a runner from the posted spec and registers it.
func (s *Server) handleCreateBot(c *gin.Context) {
	var spec BotSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Name == "" {
		spec.Name = spec.Class + "-" + spec.Symbol
	}

	r, err := s.factory(spec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.Add(r); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if s.repo != nil {
		cfg := &database.BotConfig{
			BotID:          spec.ID,
			Name:           spec.Name,
			Class:          spec.Class,
			Description:    spec.Description,
			Symbol:         spec.Symbol,
			Interval:       spec.Interval,
			Mode:           spec.Mode,
			InitialBalance: spec.InitialBalance,
			Parameters:     spec.Parameters,
			Status:         string(runner.StatusStopped),
		}
		if err := s.repo.SaveBotConfig(c.Request.Context(), cfg); err != nil {
			s.log.Warn("failed to persist bot config", "bot_id", spec.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"id": spec.ID, "message": "bot created"})
}

// handleDeleteBot removes a stopped bot.
func (s *Server) handleDeleteBot(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.Remove(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if s.repo != nil {
		if err := s.repo.DeleteBotConfig(c.Request.Context(), id); err != nil {
			s.log.Warn("failed to delete bot config", "bot_id", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "bot removed"})
}

func (s *Server) handleStartBot(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.manager.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	if err := s.manager.StartBot(context.Background(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.persistStatus(c, id, string(runner.StatusRunning))
	c.JSON(http.StatusOK, gin.H{"message": "bot started"})
}

func (s *Server) handleStopBot(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.manager.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	if err := s.manager.StopBot(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.persistStatus(c, id, string(runner.StatusStopped))
	c.JSON(http.StatusOK, gin.H{"message": "bot stopped"})
}

func (s *Server) handleKillBot(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.manager.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	reason := c.DefaultQuery("reason", "manual kill via API")
	if err := s.manager.KillBot(id, reason); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.persistStatus(c, id, string(runner.StatusKilled))
	c.JSON(http.StatusOK, gin.H{"message": "kill-switch engaged"})
}

// handleBotStatus returns the bot's P&L, balances and open positions.
func (s *Server) handleBotStatus(c *gin.Context) {
	r, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	rep := r.Report()
	c.JSON(http.StatusOK, gin.H{
		"id":               rep.ID,
		"mode":             rep.Mode,
		"status":           rep.Status,
		"strategy":         rep.Strategy,
		"symbol":           rep.Symbol,
		"interval":         rep.Interval,
		"balance":          rep.Portfolio.CashBalance,
		"equity":           rep.Portfolio.Equity,
		"realized_pnl":     rep.Portfolio.RealizedPnL,
		"unrealized_pnl":   rep.Portfolio.UnrealizedPnL,
		"max_drawdown_pct": rep.Portfolio.MaxDrawdownPct,
		"trade_count":      rep.Portfolio.TradeCount,
		"positions":        r.Portfolio().OpenPositions(),
		"events_processed": rep.EventsProcessed,
		"halt_reason":      rep.HaltReason,
	})
}

// handleBotTrades returns the bot's fills in execution order.
func (s *Server) handleBotTrades(c *gin.Context) {
	r, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": r.Engine().Fills()})
}

// handleBotOrders returns the bot's full order log.
func (s *Server) handleBotOrders(c *gin.Context) {
	r, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": r.Engine().Orders()})
}

// handleBotRisk returns recent rule evaluations and kill-switch state.
func (s *Server) handleBotRisk(c *gin.Context) {
	r, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	re := r.Engine().Risk()
	c.JSON(http.StatusOK, gin.H{
		"rules":                 re.Rules(),
		"evaluations":           re.RecentViolations(),
		"kill_switch_activated": r.Engine().Halted(),
		"halt_reason":           r.Engine().HaltReason(),
		"session_start_equity":  re.SessionStartEquity(),
	})
}

// handleGlobalMetrics aggregates equity and P&L across all bots.
func (s *Server) handleGlobalMetrics(c *gin.Context) {
	gm := s.manager.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"bots":                 gm.Bots,
		"bots_running":         gm.Running,
		"total_equity":         gm.TotalEquity,
		"total_pnl":            gm.TotalRealized + gm.TotalUnrealized,
		"total_realized_pnl":   gm.TotalRealized,
		"total_unrealized_pnl": gm.TotalUnrealized,
		"total_trades":         gm.TotalTrades,
	})
}

// persistStatus records a lifecycle transition, best effort.
func (s *Server) persistStatus(c *gin.Context, id, status string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpdateBotConfigStatus(c.Request.Context(), id, status); err != nil {
		s.log.Warn("failed to persist bot status", "bot_id", id, "error", err)
	}
}

package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// WebhookRequest is the inbound trigger payload. The secret is a shared
// string checked in constant time; there is no user auth on this surface.
type WebhookRequest struct {
	Secret    string  `json:"secret"`
	Symbol    string  `json:"symbol" binding:"required"`
	Timeframe string  `json:"timeframe"`
	Action    string  `json:"action" binding:"required"`
	Price     float64 `json:"price"`
}

const (
	ActionAnalyze    = "ANALYZE"
	ActionForceEntry = "FORCE_ENTRY"
	ActionClose      = "CLOSE"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.supervisor.IsRunning(),
	})
}

func (s *Server) handleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.cfg.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.cfg.WebhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch strings.ToUpper(req.Action) {
	case ActionAnalyze:
		results := s.supervisor.ForceScan(c.Request.Context(), symbol, false)
		c.JSON(http.StatusOK, gin.H{"action": ActionAnalyze, "symbol": symbol, "accounts": results})
	case ActionForceEntry:
		results := s.supervisor.ForceScan(c.Request.Context(), symbol, true)
		c.JSON(http.StatusOK, gin.H{"action": ActionForceEntry, "symbol": symbol, "accounts": results})
	case ActionClose:
		closed := s.supervisor.CloseSymbol(c.Request.Context(), symbol)
		c.JSON(http.StatusOK, gin.H{"action": ActionClose, "symbol": symbol, "closed": closed})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":  s.supervisor.IsRunning(),
		"accounts": s.supervisor.Status(c.Request.Context()),
	})
}

func (s *Server) handleAccountRisk(c *gin.Context) {
	engine := s.supervisor.Engine(c.Param("id"))
	if engine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	c.JSON(http.StatusOK, engine.RiskSummary())
}

func (s *Server) handleAccountTrades(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade journal disabled"})
		return
	}
	engine := s.supervisor.Engine(c.Param("id"))
	if engine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	trades, err := s.history.RecentTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

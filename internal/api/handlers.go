package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trendguard/internal/ledger"
	"trendguard/internal/logger"
	"trendguard/internal/respond"
	"trendguard/internal/rules"
	"trendguard/internal/store"
	"trendguard/pkg/models"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTrends(c *gin.Context) {
	trends, err := s.ledger.ActiveTrends(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read trends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends, "count": len(trends)})
}

func (s *Server) getTrend(c *gin.Context) {
	trend, err := s.ledger.GetTrend(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trend not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read trend"})
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (s *Server) listWarnings(c *gin.Context) {
	severity := models.RiskLevel(c.Query("severity"))
	if severity != "" && !validRiskLevel(severity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
		return
	}
	warnings, err := s.ledger.ActiveWarnings(c.Request.Context(), severity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read warnings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings, "count": len(warnings)})
}

func (s *Server) getWarning(c *gin.Context) {
	ctx := c.Request.Context()
	warning, err := s.ledger.GetWarning(ctx, c.Param("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "warning not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read warning"})
		return
	}
	acks, err := s.ledger.Acknowledgements(ctx, warning.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read acknowledgements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"warning": warning, "acknowledgements": acks})
}

type ackRequest struct {
	Actor   string `json:"actor" binding:"required"`
	Comment string `json:"comment"`
}

func (s *Server) ackWarning(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}
	ack := models.Acknowledgement{
		WarningID:      c.Param("id"),
		Actor:          req.Actor,
		Comment:        req.Comment,
		AcknowledgedAt: time.Now().UTC(),
	}
	err := s.ledger.Acknowledge(c.Request.Context(), ack)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "warning not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record acknowledgement"})
		return
	}
	c.JSON(http.StatusCreated, ack)
}

func (s *Server) getContent(c *gin.Context) {
	ctx := c.Request.Context()
	content, err := s.store.GetContent(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read content"})
		return
	}
	resp := gin.H{"content": content}
	if det, err := s.store.GetDetection(ctx, content.ID); err == nil {
		resp["detection"] = det
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listRules(c *gin.Context) {
	ruleSet := s.engine.Rules()
	c.JSON(http.StatusOK, gin.H{"rules": ruleSet, "count": len(ruleSet)})
}

func (s *Server) reloadRules(c *gin.Context) {
	if s.rulesPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no rules path configured"})
		return
	}
	loaded, stats, err := rules.LoadRuleSet(s.rulesPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.engine.Reload(loaded)
	logger.Infof("escalation rules reloaded: %d active, %d skipped, %d disabled", stats.Loaded, stats.SkippedInvalid, stats.SkippedDisabled)
	c.JSON(http.StatusOK, gin.H{
		"loaded":   stats.Loaded,
		"skipped":  stats.SkippedInvalid,
		"disabled": stats.SkippedDisabled,
		"files":    stats.TotalFiles,
	})
}

func (s *Server) queueStats(c *gin.Context) {
	ctx := c.Request.Context()
	lanes := make(map[string]any, 3)
	for _, lane := range []string{respond.ResponseLane, respond.EscalationLane, respond.ContentStateLane} {
		stats, err := s.queue.Stats(ctx, lane)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue stats"})
			return
		}
		lanes[lane] = stats
	}
	c.JSON(http.StatusOK, gin.H{"lanes": lanes})
}

func (s *Server) pendingReview(c *gin.Context) {
	severity := models.Severity(c.Param("severity"))
	if !validSeverity(severity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
		return
	}
	entries, err := s.review.Pending(c.Request.Context(), severity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read review lane"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func validRiskLevel(r models.RiskLevel) bool {
	switch r {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
		return true
	}
	return false
}

func validSeverity(s models.Severity) bool {
	switch s {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
		return true
	}
	return false
}

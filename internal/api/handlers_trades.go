package api

import (
	"net/http"
	"strconv"
	"strings"

	"autobot-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

const (
	defaultRecentLimit = 5
	defaultPageSize    = 10
)

// handleGetTrades returns trades scoped to the current run session. mode=recent
// (default) returns the newest rows; mode=all paginates the full history.
func (s *Server) handleGetTrades(c *gin.Context) {
	ctx := c.Request.Context()

	filter := database.TradeFilter{
		Symbol:   strings.TrimSpace(c.Query("symbol")),
		Interval: strings.TrimSpace(c.Query("interval")),
	}

	// Scope to the current session pointer, falling back to the session id on
	// the newest trade row when the pointer has never been written.
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	if settings != nil && settings.CurrentSessionID != nil {
		filter.SessionID = settings.CurrentSessionID
	} else {
		sid, err := s.repo.LatestTradeSessionID(ctx)
		if err != nil {
			s.jsonError(c, http.StatusInternalServerError, err)
			return
		}
		filter.SessionID = sid
	}

	if c.DefaultQuery("mode", "recent") == "recent" {
		limit := intQuery(c, "limit", defaultRecentLimit)
		rows, err := s.repo.RecentTrades(ctx, filter, limit)
		if err != nil {
			s.jsonError(c, http.StatusInternalServerError, err)
			return
		}
		if rows == nil {
			rows = []*database.TradeRow{}
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows})
		return
	}

	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", defaultPageSize)
	rows, total, err := s.repo.TradePage(ctx, filter, page, pageSize)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []*database.TradeRow{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":      rows,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// intQuery parses a positive integer query parameter, clamping to 1.
func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

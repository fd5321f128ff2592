package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"autobot-dashboard/internal/cleanup"

	"github.com/gin-gonic/gin"
)

// handleCleanup runs the retention sweep. Callers authenticate with the
// shared cron token, passed either as ?token= or the X-Cron-Token header;
// anything else gets a plain-text 403. Output is one report line per table,
// matching what cron job logs expect.
func (s *Server) handleCleanup(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("X-Cron-Token")
	}
	if s.config.CleanupToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.config.CleanupToken)) != 1 {
		c.String(http.StatusForbidden, "forbidden\n")
		return
	}

	opts := cleanup.Options{
		Table:     c.DefaultQuery("table", "ALL"),
		Batch:     intQuery(c, "batch", 0),
		MaxRounds: intQuery(c, "rounds", 0),
		DryRun:    c.Query("dry") == "1",
	}

	results, err := s.sweeper.Run(c.Request.Context(), opts)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}

	var b strings.Builder
	for _, res := range results {
		b.WriteString(res.String())
		b.WriteByte('\n')
	}
	c.String(http.StatusOK, b.String())
}

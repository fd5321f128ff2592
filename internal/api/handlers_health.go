package api

import (
	"context"
	"net/http"
	"time"

	"autobot-dashboard/internal/health"

	"github.com/gin-gonic/gin"
)

// The health endpoint issues one journal query per job; every query runs
// under this deadline so a stalled store connection fails the request fast
// instead of hanging it.
const healthQueryTimeout = 5 * time.Second

// handleGetJobHealth returns the derived health verdict for every visible
// background job, scoped to the configured symbols/intervals when both are
// set.
func (s *Server) handleGetJobHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthQueryTimeout)
	defer cancel()

	var symbols, intervals []string
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	if settings != nil {
		symbols = settings.Symbols
		intervals = settings.Intervals
	}

	jobs, err := s.healthAgg.Aggregate(ctx, time.Now(), symbols, intervals)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []health.JobHealth{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

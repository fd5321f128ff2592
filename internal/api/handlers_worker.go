package api

import (
	"net/http"
	"time"

	"autobot-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

type heartbeatRequest struct {
	JobID    string   `json:"job_id"`
	Phase    string   `json:"phase"`
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Step     int      `json:"step"`
	Total    int      `json:"total"`
	Pct      *float64 `json:"pct"`
}

// handlePostHeartbeat records a worker progress report, overwriting the
// previous row for the same job. When pct is omitted it is derived from
// step/total.
func (s *Server) handlePostHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.JobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id required"})
		return
	}

	jp := &database.JobProgress{
		JobID:    req.JobID,
		Phase:    req.Phase,
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Step:     req.Step,
		Total:    req.Total,
	}
	if req.Pct != nil {
		jp.Pct = *req.Pct
	}

	if err := s.repo.UpsertHeartbeat(c.Request.Context(), jp, req.Pct != nil); err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": 1})
}

type journalRequest struct {
	JobID  string `json:"job_id"`
	Rule   string `json:"rule"`
	TS     int64  `json:"ts"`
	Level  string `json:"level"`
	Detail string `json:"detail"`
}

// handlePostJournal appends a leveled event. Job-scoped events pass job_id
// and get the JOB:<id> rule tag; everything else passes rule directly.
func (s *Server) handlePostJournal(c *gin.Context) {
	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rule := req.Rule
	if req.JobID != "" {
		rule = "JOB:" + req.JobID
	}
	if rule == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id or rule required"})
		return
	}

	ts := req.TS
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}

	entry := &database.JournalEntry{
		TS:     ts,
		Rule:   rule,
		Level:  req.Level,
		Detail: req.Detail,
	}
	if err := s.repo.AppendJournal(c.Request.Context(), entry); err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": 1})
}

package api

import (
	"net/http"
	"time"

	"autobot-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

// handleGetMetrics returns the dashboard aggregate view: enabled flag,
// resolved session scope, PnL windows, latest job progress, and
// long/short/hold counts for the current session.
func (s *Server) handleGetMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}

	isEnabled := 0
	var symbols, intervals []string
	if settings != nil {
		if settings.IsEnabled {
			isEnabled = 1
		}
		symbols = settings.Symbols
		intervals = settings.Intervals
	}

	sess, err := s.resolveMetricsSession(c, settings)
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}

	var sessionID interface{}
	longCnt, shortCnt, holdCnt := 0, 0, 0
	pnlSession := 0.0
	if sess != nil {
		sessionID = sess.SessionID
		start := sess.StartedAt
		end := now.UnixMilli()
		if !sess.IsActive && sess.StoppedAt != nil {
			end = *sess.StoppedAt
		}

		longCnt, shortCnt, err = s.tradeCounts(c, sess.SessionID, start, end)
		if err != nil {
			s.jsonError(c, http.StatusInternalServerError, err)
			return
		}
		holdCnt, err = s.repo.CountHoldDecisions(ctx, sess.SessionID, start, end)
		if err != nil {
			s.jsonError(c, http.StatusInternalServerError, err)
			return
		}
		pnlSession, err = s.repo.SumPnLBySession(ctx, sess.SessionID)
		if err != nil {
			s.jsonError(c, http.StatusInternalServerError, err)
			return
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	pnlToday, err := s.repo.SumPnLSince(ctx, midnight.UnixMilli())
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	pnl7d, err := s.repo.SumPnLSince(ctx, now.AddDate(0, 0, -7).UnixMilli())
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}

	var progress gin.H
	if hb, err := s.repo.LatestHeartbeat(ctx, symbols, intervals); err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	} else if hb != nil {
		progress = gin.H{
			"job_id": hb.JobID,
			"phase":  hb.Phase,
			"step":   hb.Step,
			"total":  hb.Total,
			"pct":    hb.Pct,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"is_enabled":  isEnabled,
		"session_id":  sessionID,
		"pnl_today":   pnlToday,
		"pnl_7d":      pnl7d,
		"pnl_session": pnlSession,
		"progress":    progress,
		"stats":       gin.H{"long": longCnt, "short": shortCnt, "hold": holdCnt},
	})
}

// resolveMetricsSession picks the session the dashboard is scoped to. The
// settings pointer wins when it resolves; otherwise the newest session is
// used (active rows first), matching how a restarted worker is displayed
// before the pointer catches up.
func (s *Server) resolveMetricsSession(c *gin.Context, settings *database.Settings) (*database.RunSession, error) {
	ctx := c.Request.Context()
	if settings != nil && settings.CurrentSessionID != nil {
		sess, err := s.repo.GetSession(ctx, *settings.CurrentSessionID)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return s.repo.NewestSession(ctx)
}

// tradeCounts counts closed trades per side. Session-scoped counts win; the
// time-window fallback only covers trade rows written without a session id.
func (s *Server) tradeCounts(c *gin.Context, sessionID, startMs, endMs int64) (long, short int, err error) {
	ctx := c.Request.Context()
	long, err = s.repo.CountTradesBySession(ctx, sessionID, true)
	if err != nil {
		return 0, 0, err
	}
	short, err = s.repo.CountTradesBySession(ctx, sessionID, false)
	if err != nil {
		return 0, 0, err
	}
	if long > 0 || short > 0 {
		return long, short, nil
	}

	long, err = s.repo.CountTradesByWindow(ctx, startMs, endMs, true)
	if err != nil {
		return 0, 0, err
	}
	short, err = s.repo.CountTradesByWindow(ctx, startMs, endMs, false)
	if err != nil {
		return 0, 0, err
	}
	return long, short, nil
}

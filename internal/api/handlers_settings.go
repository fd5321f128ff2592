package api

import (
	"encoding/json"
	"net/http"

	"autobot-dashboard/internal/database"

	"github.com/gin-gonic/gin"
)

// handleGetSettings returns the singleton settings record, or an empty object
// when it has never been written.
func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.repo.GetSettings(c.Request.Context())
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	if settings == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// handlePostSettings applies a partial settings update. When the payload
// carries is_enabled, the run-session transition executes inside the same
// transaction as the field updates, so concurrent readers never observe a
// half-applied toggle. A first-ever write inserts the defaults-backed row and
// enables the bot unless the payload says otherwise.
func (s *Server) handlePostSettings(c *gin.Context) {
	var raw map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil || raw == nil {
		// Malformed or non-object payloads degrade to an empty patch.
		raw = map[string]interface{}{}
	}
	patch := database.ParseSettingsPatch(raw)

	ctx := c.Request.Context()
	var inserted bool
	err := s.repo.Transact(ctx, func(tx *database.TxRepo) error {
		var err error
		inserted, err = tx.UpsertSettings(ctx, patch)
		if err != nil {
			return err
		}

		desired, run := false, false
		switch {
		case patch.IsEnabled != nil:
			desired, run = *patch.IsEnabled, true
		case inserted:
			// A fresh record starts enabled, matching the stored default.
			desired, run = true, true
		}
		if !run {
			return nil
		}

		mode := ""
		if patch.TradeMode != nil {
			mode = *patch.TradeMode
		}
		_, err = s.lifecycle.Apply(ctx, tx, desired, mode)
		return err
	})
	if err != nil {
		s.jsonError(c, http.StatusInternalServerError, err)
		return
	}

	if inserted {
		c.JSON(http.StatusOK, gin.H{"ok": 1, "inserted": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": 1})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetExchangeInfo returns the tradable symbol catalog and the supported
// intervals. The catalog service never fails: it degrades through cache and
// last-good copies down to a minimal builtin list.
func (s *Server) handleGetExchangeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Listing(c.Request.Context()))
}

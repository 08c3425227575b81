package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const analyticsDefaultWindow = 30 * 24 * time.Hour

func (s *Server) GetAnalyticsSummary(c *gin.Context) {
	summary, err := s.oplogSvc.Summarize(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetAnalyticsDaily(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-analyticsDefaultWindow)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "expected YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "expected YYYY-MM-DD"))
			return
		}
		to = parsed.Add(24 * time.Hour)
	}
	if from.After(to) {
		AbortWithError(c, newValidationError("from", "invalid_range", "from must not be after to"))
		return
	}

	stats, err := s.oplogSvc.DailyStats(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

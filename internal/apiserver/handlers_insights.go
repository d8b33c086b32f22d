package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// insightsHandler returns the full current-insights snapshot last assembled
// by the engine.
func (s *Server) insightsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Current())
}

func (s *Server) insightsAveragesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"averages": s.engine.Averages(s.now())})
}

func (s *Server) insightsExtremesHandler(c *gin.Context) {
	extremes, ok := s.engine.Extremes()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"extremes": nil, "available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"extremes": extremes, "available": true})
}

func (s *Server) insightsCongestionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Congestion())
}

type insightsHealthResponse struct {
	Status       string  `json:"status"`
	Completeness float64 `json:"completeness"`
	FreshnessMs  int64   `json:"freshness_ms"`
	HasGaps      bool    `json:"has_gaps"`
}

// insightsHealthHandler reports a coarse health signal derived from the
// engine's last data-quality assessment rather than a binary up/down check.
func (s *Server) insightsHealthHandler(c *gin.Context) {
	quality := s.engine.Current().DataQuality
	status := "healthy"
	switch {
	case quality.Completeness < 0.5:
		status = "degraded"
	case quality.HasGaps:
		status = "gapped"
	}
	c.JSON(http.StatusOK, insightsHealthResponse{
		Status:       status,
		Completeness: quality.Completeness,
		FreshnessMs:  quality.Freshness.Milliseconds(),
		HasGaps:      quality.HasGaps,
	})
}

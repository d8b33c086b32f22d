package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellar-fee-tracker/insights-service/internal/logging"
	"github.com/stellar-fee-tracker/insights-service/internal/pagination"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
	"github.com/stellar-fee-tracker/insights-service/internal/security"
)

type createAlertConfigRequest struct {
	WebhookURL string `json:"webhook_url" binding:"required"`
	Threshold  string `json:"threshold"`
}

// createAlertConfigHandler validates the webhook URL against SSRF targets
// before persisting it, since the dispatcher later POSTs to it unattended.
func (s *Server) createAlertConfigHandler(c *gin.Context) {
	var req createAlertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := security.ValidateEndpointURL(req.WebhookURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook_url", "message": err.Error()})
		return
	}

	thresholdName := req.Threshold
	if thresholdName == "" {
		thresholdName = "Major"
	}
	threshold, ok := repository.ParseConfigThreshold(thresholdName)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold", "message": "threshold must be one of Minor, Major, Critical"})
		return
	}

	id, err := s.repo.CreateAlertConfig(c.Request.Context(), req.WebhookURL, threshold)
	if err != nil {
		logging.L(c.Request.Context()).Error("create alert config failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listAlertConfigHandler(c *gin.Context) {
	configs, err := s.repo.ListAlertConfigs(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("list alert configs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": configs})
}

type updateAlertConfigRequest struct {
	Threshold *string `json:"threshold"`
	Enabled   *bool   `json:"enabled"`
}

func (s *Server) updateAlertConfigHandler(c *gin.Context) {
	id := c.Param("id")
	var req updateAlertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var threshold *repository.ConfigThreshold
	if req.Threshold != nil {
		t, ok := repository.ParseConfigThreshold(*req.Threshold)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		threshold = &t
	}

	found, err := s.repo.UpdateAlertConfig(c.Request.Context(), id, threshold, req.Enabled)
	if err != nil {
		logging.L(c.Request.Context()).Error("update alert config failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	if !found {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteAlertConfigHandler(c *gin.Context) {
	id := c.Param("id")
	found, err := s.repo.SoftDeleteAlertConfig(c.Request.Context(), id)
	if err != nil {
		logging.L(c.Request.Context()).Error("delete alert config failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	if !found {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// alertHistoryHandler returns a page of past alert events, newest first,
// filtered by optional severity/delivered query params. An optional cursor
// (from a previous response's next_cursor) continues past the last page;
// Repository has no seek-based query, so the cursor is applied by filtering
// the widest allowed page client-side.
func (s *Server) alertHistoryHandler(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	limit = repository.ClampHistoryLimit(limit)

	filter := repository.AlertEventFilter{Severity: c.Query("severity")}
	if raw := c.Query("delivered"); raw != "" {
		delivered, err := strconv.ParseBool(raw)
		if err == nil {
			filter.Delivered = &delivered
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	fetchLimit := limit + 1
	if cursor != nil {
		fetchLimit = 100 // Repository.QueryAlertEvents caps at 100; widest page we can filter.
	}

	events, err := s.repo.QueryAlertEvents(c.Request.Context(), fetchLimit, filter)
	if err != nil {
		logging.L(c.Request.Context()).Error("query alert events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}

	if cursor != nil {
		events = eventsBeforeCursor(events, *cursor)
	}

	page, nextCursor, hasMore := pagination.ComputePage(events, limit, func(e repository.AlertEvent) (time.Time, string) {
		return e.TriggeredAt, strconv.FormatInt(e.ID, 10)
	})

	total, err := s.repo.CountAlertEvents(c.Request.Context(), filter)
	if err != nil {
		logging.L(c.Request.Context()).Error("count alert events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":       total,
		"items":       page,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func eventsBeforeCursor(events []repository.AlertEvent, cursor pagination.Cursor) []repository.AlertEvent {
	out := make([]repository.AlertEvent, 0, len(events))
	for _, e := range events {
		if e.TriggeredAt.Before(cursor.CreatedAt) {
			out = append(out, e)
		}
	}
	return out
}

package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissary/internal/metrics"
	"github.com/smallbiznis/commissary/internal/webhook"
)

// HandlePaymentWebhook accepts a signed notification from the payment
// processor. Duplicates of an already-processed event answer 200 so the
// source stops redelivering; verification failures answer 4xx; storage
// faults answer 5xx so the source tries again.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookEventsReceived.WithLabelValues("invalid").Inc()
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.verifier.Verify(payload, c.GetHeader(webhook.SignatureHeader), time.Now()); err != nil {
		metrics.WebhookEventsReceived.WithLabelValues("rejected").Inc()
		AbortWithError(c, err)
		return
	}

	event, err := webhook.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, webhook.ErrEventIgnored) {
			metrics.WebhookEventsReceived.WithLabelValues("ignored").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		metrics.WebhookEventsReceived.WithLabelValues("invalid").Inc()
		AbortWithError(c, err)
		return
	}

	result, err := s.saleSvc.RecordSale(c.Request.Context(), event)
	if err != nil {
		metrics.WebhookEventsReceived.WithLabelValues("failed").Inc()
		AbortWithError(c, err)
		return
	}

	metrics.WebhookEventsReceived.WithLabelValues("accepted").Inc()
	body := gin.H{
		"status":    "ok",
		"duplicate": result.Duplicate,
	}
	// An in-flight duplicate has no sale to point at yet.
	if result.SaleID != 0 {
		body["sale_id"] = result.SaleID.String()
	}
	c.JSON(http.StatusOK, body)
}

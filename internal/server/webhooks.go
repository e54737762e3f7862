package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/renderforge/billing/internal/billing/domain"
	webhookdomain "github.com/renderforge/billing/internal/webhook/domain"
)

// HandleWebhook receives one provider delivery. Anything other than a 2xx
// tells the provider to redeliver, so transient failures map to 5xx and
// permanent rejections to 4xx.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	if s.limiter != nil && !s.limiter.Allow(c.Request.Context(), provider, c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = s.webhookSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, webhookdomain.ErrUnknownProvider):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, webhookdomain.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, webhookdomain.ErrInvalidPayload),
			errors.Is(err, webhookdomain.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, billingdomain.ErrUnmappableEvent),
			errors.Is(err, billingdomain.ErrUnresolvablePlan):
			// The event is recorded as failed; a later redelivery retries it
			// once the missing linkage exists.
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

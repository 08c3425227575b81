package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/papermill/internal/billing/domain"
)

const webhookBodyLimit = 1 << 20

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	provider := c.Param("provider")
	err = s.billingSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		// Redeliveries are acknowledged so the provider stops retrying.
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

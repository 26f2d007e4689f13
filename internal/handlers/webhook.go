// internal/handlers/webhook.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// maxWebhookBody caps the payload read before signature verification.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService *services.WebhookService
}

func NewWebhookHandler(webhookService *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// POST /webhooks/payments
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	rawBody, err := c.GetRawData()
	if err != nil {
		utils.BadRequestResponse(c, "Unable to read webhook body", nil)
		return
	}

	signature := c.GetHeader(h.webhookService.SignatureHeader())
	result, err := h.webhookService.HandleProviderEvent(c.Request.Context(), rawBody, signature)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(result.StatusCode, utils.APIResponse{
		Success: true,
		Data:    result,
	})
}

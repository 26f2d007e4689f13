// internal/handlers/purchase.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

type PurchaseHandler struct {
	fulfillmentService *services.FulfillmentService
}

func NewPurchaseHandler(fulfillmentService *services.FulfillmentService) *PurchaseHandler {
	return &PurchaseHandler{
		fulfillmentService: fulfillmentService,
	}
}

// POST /purchases
func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	var req services.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid purchase request", err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if userIDStr, exists := utils.GetUserIDFromContext(c); exists {
		if buyerID, err := uuid.Parse(userIDStr); err == nil {
			req.BuyerID = &buyerID
		}
	}

	outcome, err := h.fulfillmentService.InitiatePurchase(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, outcome)
}

// GET /charges/:id
func (h *PurchaseHandler) GetCharge(c *gin.Context) {
	chargeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid charge ID", nil)
		return
	}

	outcome, err := h.fulfillmentService.GetOutcome(c.Request.Context(), chargeID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, outcome)
}

// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

type AdminHandler struct {
	fulfillmentService *services.FulfillmentService
	capacityService    *services.CapacityService
}

type UpdateCapacityRequest struct {
	// Capacity is nil to make the tier unlimited.
	Capacity *int `json:"capacity" validate:"omitempty,min=0"`
}

func NewAdminHandler(fulfillmentService *services.FulfillmentService, capacityService *services.CapacityService) *AdminHandler {
	return &AdminHandler{
		fulfillmentService: fulfillmentService,
		capacityService:    capacityService,
	}
}

// GET /admin/charges/stuck
func (h *AdminHandler) GetStuckCharges(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	charges, total, err := h.fulfillmentService.ListStuckCharges(c.Request.Context(), params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(charges, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /admin/charges/:id/retry-mint
func (h *AdminHandler) RetryMint(c *gin.Context) {
	chargeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid charge ID", nil)
		return
	}

	adminID, _ := utils.GetUserIDFromContext(c)
	logrus.WithFields(logrus.Fields{
		"charge_id": chargeID,
		"admin_id":  adminID,
	}).Info("Operator requested mint retry")

	outcome, err := h.fulfillmentService.RetryMint(c.Request.Context(), chargeID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, outcome)
}

// PUT /admin/events/:event_id/tiers/:tier_id/capacity
func (h *AdminHandler) UpdateTierCapacity(c *gin.Context) {
	eventID, tierID, ok := parseTierPath(c)
	if !ok {
		return
	}

	var req UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid capacity request", err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	snapshot, err := h.capacityService.SetTierCapacity(c.Request.Context(), eventID, tierID, req.Capacity)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, snapshot)
}

// internal/handlers/capacity.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

type CapacityHandler struct {
	capacityService *services.CapacityService
}

func NewCapacityHandler(capacityService *services.CapacityService) *CapacityHandler {
	return &CapacityHandler{
		capacityService: capacityService,
	}
}

// GET /events/:event_id/tiers/:tier_id/capacity
func (h *CapacityHandler) GetCapacity(c *gin.Context) {
	eventID, tierID, ok := parseTierPath(c)
	if !ok {
		return
	}

	snapshot, err := h.capacityService.CheckCapacity(c.Request.Context(), eventID, tierID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, snapshot)
}

func parseTierPath(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	eventID, err := uuid.Parse(c.Param("event_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid event ID", nil)
		return uuid.Nil, uuid.Nil, false
	}

	tierID, err := uuid.Parse(c.Param("tier_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid tier ID", nil)
		return uuid.Nil, uuid.Nil, false
	}

	return eventID, tierID, true
}

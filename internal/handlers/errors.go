// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// respondError maps a service error onto the response envelope.
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var capacityErr *services.CapacityExceededError
	var gatewayErr *services.PaymentGatewayError

	switch {
	case errors.As(err, &validationErr):
		utils.ValidationErrorResponse(c, []utils.ValidationError{{
			Field:   validationErr.Field,
			Tag:     "invalid",
			Message: validationErr.Message,
		}})
	case errors.As(err, &capacityErr):
		utils.ConflictResponse(c, "CAPACITY_EXCEEDED", capacityErr.Error(), gin.H{
			"tier_id":   capacityErr.TierID,
			"requested": capacityErr.Requested,
			"remaining": capacityErr.Remaining,
		})
	case errors.As(err, &gatewayErr):
		utils.BadGatewayResponse(c, "PAYMENT_GATEWAY_ERROR", "Payment provider could not create the charge")
	case errors.Is(err, services.ErrEventNotFound):
		utils.NotFoundResponse(c, "Event")
	case errors.Is(err, services.ErrTierNotFound):
		utils.NotFoundResponse(c, "Ticket tier")
	case errors.Is(err, services.ErrChargeNotFound):
		utils.NotFoundResponse(c, "Charge")
	case errors.Is(err, services.ErrInvalidSignature):
		utils.UnauthorizedResponse(c, "Invalid webhook signature")
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

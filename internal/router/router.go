// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/handlers"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/middleware"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/monitoring"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// Services are the long-lived fulfillment services shared by the API and
// the mint retry worker.
type Services struct {
	Capacity    *services.CapacityService
	Charges     *services.ChargeStore
	Fulfillment *services.FulfillmentService
	Webhooks    *services.WebhookService
}

// BuildServices wires the fulfillment pipeline from configuration. A nil
// redis client disables the webhook dedupe cache.
func BuildServices(db *gorm.DB, cfg *config.Config, redisClient redis.Cmdable) (*Services, error) {
	gateway, err := services.NewPaymentGateway(cfg)
	if err != nil {
		return nil, err
	}

	minter, err := services.NewMinter(cfg)
	if err != nil {
		return nil, err
	}

	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	capacityService := services.NewCapacityService(db)
	chargeStore := services.NewChargeStore(db)
	fulfillmentService := services.NewFulfillmentService(db, cfg, services.FulfillmentDeps{
		Events:   services.NewEventDirectory(db),
		Capacity: capacityService,
		Charges:  chargeStore,
		Gateway:  gateway,
		Minter:   minter,
		Metadata: storageService,
		Notifier: services.NewNotificationService(cfg.PubNub),
	})

	var cache services.EventCache
	if redisClient != nil {
		cache = services.NewRedisEventCache(redisClient, cfg.Redis.EventTTL)
	}
	webhookService := services.NewWebhookService(db, gateway, chargeStore, fulfillmentService, cache)

	return &Services{
		Capacity:    capacityService,
		Charges:     chargeStore,
		Fulfillment: fulfillmentService,
		Webhooks:    webhookService,
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	// Initialize handlers
	purchaseHandler := handlers.NewPurchaseHandler(svc.Fulfillment)
	capacityHandler := handlers.NewCapacityHandler(svc.Capacity)
	webhookHandler := handlers.NewWebhookHandler(svc.Webhooks)
	adminHandler := handlers.NewAdminHandler(svc.Fulfillment, svc.Capacity)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL, !cfg.IsProduction()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"version":          "1.0.0",
			"fulfillment_mode": cfg.Fulfillment.Mode,
			"payment_provider": cfg.Payment.Provider,
		})
	})
	r.GET("/metrics", monitoring.Handler())

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Payment provider callbacks are authenticated by signature, not by
		// token, and are never rate limited.
		v1.POST("/webhooks/payments", webhookHandler.HandlePaymentEvent)

		api := v1.Group("")
		api.Use(middleware.GeneralRateLimit())
		{
			api.POST("/purchases", middleware.PurchaseRateLimit(), middleware.OptionalAuth(), purchaseHandler.CreatePurchase)
			api.GET("/charges/:id", purchaseHandler.GetCharge)
			api.GET("/events/:event_id/tiers/:tier_id/capacity", capacityHandler.GetCapacity)
		}

		// Operator routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLogMiddleware(db))
		{
			admin.GET("/charges/stuck", adminHandler.GetStuckCharges)
			admin.POST("/charges/:id/retry-mint", adminHandler.RetryMint)
			admin.PUT("/events/:event_id/tiers/:tier_id/capacity", adminHandler.UpdateTierCapacity)
		}
	}

	// Static file serving (for development)
	if !cfg.IsProduction() && cfg.AWS.AccessKeyID == "" {
		r.Static("/uploads", cfg.AWS.LocalDir)
	}

	return r
}

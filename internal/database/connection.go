// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}
	gormConfig.NowFunc = func() time.Time { return time.Now().UTC() }

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	// Connect to database
	DB, err = gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", dialector.Name()).Info("Database connection established successfully")
	return DB, nil
}

// OpenSQLite opens a silent sqlite database at path with a single
// connection. Service and handler tests use it with a file under t.TempDir().
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.Event{},
		&models.TicketTier{},
		&models.Charge{},
		&models.Ticket{},
		&models.WebhookEvent{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Ticket indexes
		"CREATE INDEX IF NOT EXISTS idx_tickets_event_tier_status ON tickets(event_id, tier_id, status)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_active_seat ON tickets(event_id, tier_id, seat_number) WHERE status <> 'canceled' AND is_archival = false AND deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_tickets_owner_wallet ON tickets(owner_wallet)",

		// Charge indexes
		"CREATE INDEX IF NOT EXISTS idx_charges_status_next_attempt ON charges(status, next_mint_attempt_at)",
		"CREATE INDEX IF NOT EXISTS idx_charges_created_at ON charges(created_at DESC)",

		// Event indexes
		"CREATE INDEX IF NOT EXISTS idx_events_status_starts_at ON events(status, starts_at)",

		// Audit indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",

		// Webhook indexes
		"CREATE INDEX IF NOT EXISTS idx_webhook_events_created ON webhook_events(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedDemoData creates a published demo event with two tiers so a fresh
// development database can take purchases right away.
func SeedDemoData(db *gorm.DB) error {
	logrus.Info("Seeding demo data...")

	var eventCount int64
	if err := db.Model(&models.Event{}).Count(&eventCount).Error; err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if eventCount > 0 {
		logrus.Info("Events already present, skipping demo seed")
		return nil
	}

	gaCapacity := 100
	vipCapacity := 10
	event := &models.Event{
		Title:     "Unchained Launch Night",
		StartsAt:  time.Now().UTC().Add(30 * 24 * time.Hour),
		VenueName: "The Foundry",
		Status:    models.EventStatusPublished,
	}

	return WithTransaction(db, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to create demo event: %w", err)
		}

		tiers := []models.TicketTier{
			{EventID: event.ID, Name: "General Admission", Capacity: &gaCapacity, Price: decimal.RequireFromString("25.00"), Currency: "USD"},
			{EventID: event.ID, Name: "VIP", Capacity: &vipCapacity, Price: decimal.RequireFromString("120.00"), Currency: "USD"},
		}
		if err := tx.Create(&tiers).Error; err != nil {
			return fmt.Errorf("failed to create demo tiers: %w", err)
		}

		logrus.WithField("event_id", event.ID).Info("Demo event created")
		return nil
	})
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

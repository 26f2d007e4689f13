package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/database"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

const (
	testWallet        = "0x52908400098527886E0F7030069857D2E4169EE7"
	testWebhookSecret = "whsec-test"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "fulfillment.db"))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { database.Close(db) })

	return db
}

func newTestConfig(mode string) *config.Config {
	return &config.Config{
		Environment: "test",
		Payment: config.PaymentConfig{
			Provider:          "sandbox",
			SandboxWebhookKey: testWebhookSecret,
			Timeout:           time.Second,
		},
		Fulfillment: config.FulfillmentConfig{
			Mode:           mode,
			MintTimeout:    time.Second,
			MaxMintRetries: 3,
			RetryBackoff:   time.Minute,
			MaxBackoff:     time.Hour,
			RetryInterval:  time.Minute,
			RetryBatchSize: 10,
		},
		Blockchain: config.BlockchainConfig{
			Network: "base-sepolia",
			Minter:  "simulated",
		},
	}
}

func createEvent(t *testing.T, db *gorm.DB, status models.EventStatus) *models.Event {
	t.Helper()

	event := &models.Event{
		Title:     "Night Shift",
		StartsAt:  time.Now().UTC().Add(7 * 24 * time.Hour),
		VenueName: "The Foundry",
		Status:    status,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// createTier creates a tier priced at 25.00. A negative capacity makes the
// tier unlimited.
func createTier(t *testing.T, db *gorm.DB, eventID uuid.UUID, capacity int) *models.TicketTier {
	t.Helper()

	tier := &models.TicketTier{
		EventID:  eventID,
		Name:     "General Admission",
		Price:    decimal.RequireFromString("25.00"),
		Currency: "USD",
	}
	if capacity >= 0 {
		tier.Capacity = &capacity
	}
	require.NoError(t, db.Create(tier).Error)
	return tier
}

func activeSeats(t *testing.T, db *gorm.DB, eventID, tierID uuid.UUID) []int {
	t.Helper()

	var seats []int
	err := db.Model(&models.Ticket{}).
		Where("event_id = ? AND tier_id = ? AND status <> ? AND is_archival = ?", eventID, tierID, models.TicketStatusCanceled, false).
		Order("seat_number ASC").
		Pluck("seat_number", &seats).Error
	require.NoError(t, err)
	return seats
}

func loadCharge(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Charge {
	t.Helper()

	var charge models.Charge
	require.NoError(t, db.Preload("Tickets").First(&charge, "id = ?", id).Error)
	return &charge
}

// fakeGateway is the sandbox gateway with call counting and injectable
// charge creation failures.
type fakeGateway struct {
	*SandboxGateway

	mu    sync.Mutex
	calls int
	err   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		SandboxGateway: NewSandboxGateway(config.PaymentConfig{SandboxWebhookKey: testWebhookSecret}, "http://localhost:3000"),
	}
}

func (g *fakeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error) {
	g.mu.Lock()
	g.calls++
	err := g.err
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return g.SandboxGateway.CreateCharge(ctx, req)
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeMinter fails the first failures calls, then mints sequential tokens.
// A non-nil block channel makes every call hang until it is closed, like
// an RPC client that ignores its context.
type fakeMinter struct {
	mu       sync.Mutex
	calls    int
	failures int
	block    chan struct{}
	requests []MintRequest
}

func (m *fakeMinter) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.requests = append(m.requests, req)
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	if fail {
		return nil, errors.New("rpc error: nonce too low")
	}
	return &MintResult{
		TokenID:         fmt.Sprintf("%d", 1000+n),
		TransactionHash: fmt.Sprintf("0x%064x", n),
	}, nil
}

func (m *fakeMinter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []*FulfillmentOutcome
}

func (n *recordingNotifier) NotifyFulfillment(ctx context.Context, outcome *FulfillmentOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outcomes)
}

type fulfillmentFixture struct {
	db          *gorm.DB
	cfg         *config.Config
	gateway     *fakeGateway
	minter      *fakeMinter
	notifier    *recordingNotifier
	charges     *ChargeStore
	capacity    *CapacityService
	fulfillment *FulfillmentService
	event       *models.Event
	tier        *models.TicketTier
	offset      time.Duration
}

func newFulfillmentFixture(t *testing.T, mode string, capacity int) *fulfillmentFixture {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig(mode)
	f := &fulfillmentFixture{
		db:       db,
		cfg:      cfg,
		gateway:  newFakeGateway(),
		minter:   &fakeMinter{},
		notifier: &recordingNotifier{},
		charges:  NewChargeStore(db),
		capacity: NewCapacityService(db),
	}
	f.fulfillment = NewFulfillmentService(db, cfg, FulfillmentDeps{
		Capacity: f.capacity,
		Charges:  f.charges,
		Gateway:  f.gateway,
		Minter:   f.minter,
		Notifier: f.notifier,
	})
	f.event = createEvent(t, db, models.EventStatusPublished)
	f.tier = createTier(t, db, f.event.ID, capacity)

	return f
}

// advanceClock moves the orchestrator clock forward so scheduled mint
// retries come due.
func (f *fulfillmentFixture) advanceClock(d time.Duration) {
	f.offset += d
	offset := f.offset
	f.fulfillment.now = func() time.Time { return time.Now().UTC().Add(offset) }
}

func (f *fulfillmentFixture) purchaseRequest(quantity int) *PurchaseRequest {
	return &PurchaseRequest{
		EventID:       f.event.ID,
		TierID:        f.tier.ID,
		Quantity:      quantity,
		TotalPrice:    f.tier.Price.Mul(decimal.NewFromInt(int64(quantity))),
		WalletAddress: testWallet,
		Email:         "fan@example.com",
	}
}

func commercePayload(t *testing.T, eventID, eventType, providerChargeID string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"id": "hook-" + eventID,
		"event": map[string]interface{}{
			"id":   eventID,
			"type": eventType,
			"data": map[string]interface{}{
				"id":   providerChargeID,
				"code": "ABCD1234",
			},
		},
	})
	require.NoError(t, err)
	return body
}

func defaultPagination() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func sign(body []byte) string {
	return utils.SignHMACSHA256(testWebhookSecret, body)
}

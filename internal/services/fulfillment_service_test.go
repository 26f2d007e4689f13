package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

type SyncFulfillmentTestSuite struct {
	suite.Suite
	f   *fulfillmentFixture
	ctx context.Context
}

func (suite *SyncFulfillmentTestSuite) SetupTest() {
	suite.f = newFulfillmentFixture(suite.T(), config.ModeSynchronous, 10)
	suite.ctx = context.Background()
}

func (suite *SyncFulfillmentTestSuite) TestPurchaseMintsEveryTicket() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(2))
	suite.Require().NoError(err)

	suite.Equal(OutcomeCompleted, outcome.Status)
	suite.Equal(StateMinted, outcome.State)
	suite.Equal("1001", outcome.TokenID)
	suite.Equal([]string{"1001", "1002"}, outcome.TokenIDs)
	suite.Equal([]string{"001", "002"}, outcome.Seats)
	suite.Empty(outcome.Warning)
	suite.Equal(2, suite.f.minter.Calls())
	suite.Equal(1, suite.f.notifier.Count())

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusConfirmed, charge.Status)
	suite.Equal(config.ModeSynchronous, charge.FulfillmentMode)
	suite.Equal(0, charge.MintRetryCount)
	suite.Nil(charge.LastMintError)
	suite.NotNil(charge.ConfirmedAt)
	suite.NotNil(charge.ProviderChargeID)
	suite.True(decimal.RequireFromString("50").Equal(charge.Amount))
	for _, ticket := range charge.Tickets {
		suite.Equal(models.TicketStatusMinted, ticket.Status)
		suite.True(ticket.IsMinted())
		suite.Equal(testWallet, *ticket.OwnerWallet)
	}

	req := suite.f.minter.requests[0]
	suite.Equal(suite.f.event.ID, req.EventID)
	suite.Equal(suite.f.tier.ID, req.TierID)
	suite.Equal(testWallet, req.Recipient)
	suite.Equal("General Admission", req.Section)
	suite.Equal("001", req.Row)
	suite.Equal("001", req.Seat)
}

func (suite *SyncFulfillmentTestSuite) TestRejectsNonPositiveQuantity() {
	for _, quantity := range []int{0, -2} {
		req := suite.f.purchaseRequest(1)
		req.Quantity = quantity

		_, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
		var validationErr *ValidationError
		suite.Require().True(errors.As(err, &validationErr))
		suite.Equal("quantity", validationErr.Field)
	}

	suite.Equal(0, suite.f.gateway.Calls())
	suite.Empty(activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID))
}

func (suite *SyncFulfillmentTestSuite) TestRejectsInvalidWalletAndPrice() {
	req := suite.f.purchaseRequest(1)
	req.WalletAddress = "not-a-wallet"
	_, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
	var validationErr *ValidationError
	suite.Require().True(errors.As(err, &validationErr))
	suite.Equal("wallet_address", validationErr.Field)

	req = suite.f.purchaseRequest(2)
	req.TotalPrice = decimal.RequireFromString("25.00")
	_, err = suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
	suite.Require().True(errors.As(err, &validationErr))
	suite.Equal("total_price", validationErr.Field)

	suite.Equal(0, suite.f.gateway.Calls())
}

func (suite *SyncFulfillmentTestSuite) TestRejectsUnknownOrUnpublishedEvent() {
	req := suite.f.purchaseRequest(1)
	req.EventID = uuid.New()
	_, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
	suite.ErrorIs(err, ErrEventNotFound)

	draft := createEvent(suite.T(), suite.f.db, models.EventStatusDraft)
	tier := createTier(suite.T(), suite.f.db, draft.ID, 5)
	req = suite.f.purchaseRequest(1)
	req.EventID = draft.ID
	req.TierID = tier.ID
	_, err = suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
	var validationErr *ValidationError
	suite.Require().True(errors.As(err, &validationErr))
	suite.Equal("event_id", validationErr.Field)

	suite.Equal(0, suite.f.gateway.Calls())
}

func (suite *SyncFulfillmentTestSuite) TestPartialCapacityFailsWholeRequest() {
	_, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(9))
	suite.Require().NoError(err)

	_, err = suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(3))
	var capErr *CapacityExceededError
	suite.Require().True(errors.As(err, &capErr))
	suite.Equal(1, capErr.Remaining)

	suite.Len(activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID), 9)
	suite.Equal(1, suite.f.gateway.Calls())

	var charges int64
	suite.Require().NoError(suite.f.db.Model(&models.Charge{}).Count(&charges).Error)
	suite.EqualValues(1, charges)
}

func (suite *SyncFulfillmentTestSuite) TestGatewayFailureReleasesSeats() {
	suite.f.gateway.err = errors.New("503 service unavailable")

	_, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(2))
	var gwErr *PaymentGatewayError
	suite.Require().True(errors.As(err, &gwErr))
	suite.Equal("sandbox", gwErr.Provider)

	suite.Empty(activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID))
	suite.Equal(0, suite.f.minter.Calls())

	var failed models.Charge
	suite.Require().NoError(suite.f.db.Preload("Tickets").First(&failed).Error)
	suite.Equal(models.ChargeStatusFailed, failed.Status)
	suite.Contains(failed.FailureReason, "503 service unavailable")
	suite.Empty(failed.Tickets)
	suite.Nil(failed.ProviderChargeID)

	// The next buyer still gets seat 001.
	suite.f.gateway.err = nil
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	suite.Equal([]string{"001"}, outcome.Seats)
}

func (suite *SyncFulfillmentTestSuite) TestMintFailureIsReportedAsWarning() {
	suite.f.minter.failures = 1

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	suite.Equal(OutcomeMintFailed, outcome.Status)
	suite.Equal(StateMintFailedRetrying, outcome.State)
	suite.Contains(outcome.Warning, "payment received")
	suite.Contains(outcome.Warning, "nonce too low")
	suite.Equal(1, outcome.MintRetryCount)

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusRetrying, charge.Status)
	suite.Require().NotNil(charge.LastMintError)
	suite.Contains(*charge.LastMintError, "nonce too low")
	suite.Require().NotNil(charge.NextMintAttemptAt)
	suite.True(charge.NextMintAttemptAt.After(time.Now().UTC()))
	suite.Nil(charge.MintLeaseUntil)
	suite.Nil(charge.MintedTokenID)
}

func (suite *SyncFulfillmentTestSuite) TestManualRetryAfterMintFailure() {
	suite.f.minter.failures = 1

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	suite.Equal(OutcomeMintFailed, outcome.Status)

	retried, err := suite.f.fulfillment.RetryMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, retried.Status)

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusConfirmed, charge.Status)
	suite.Equal(1, charge.MintRetryCount)
	suite.Nil(charge.LastMintError)
	suite.Nil(charge.NextMintAttemptAt)
	suite.Require().NotNil(charge.MintedTokenID)

	var tickets int64
	suite.Require().NoError(suite.f.db.Model(&models.Ticket{}).Where("charge_id = ?", charge.ID).Count(&tickets).Error)
	suite.EqualValues(1, tickets)
	suite.Equal(2, suite.f.minter.Calls())
}

func (suite *SyncFulfillmentTestSuite) TestRetryCountEqualsFailedAttempts() {
	suite.f.minter.failures = 2

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	suite.Equal(1, outcome.MintRetryCount)

	suite.f.advanceClock(2 * time.Hour)
	outcome, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeMintFailed, outcome.Status)
	suite.Equal(2, outcome.MintRetryCount)

	suite.f.advanceClock(2 * time.Hour)
	outcome, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, outcome.Status)

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(2, charge.MintRetryCount)
	suite.Nil(charge.LastMintError)
	suite.Equal(3, suite.f.minter.Calls())
}

func (suite *SyncFulfillmentTestSuite) TestRetriesExhaustedBecomeTerminal() {
	suite.f.minter.failures = 10

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	for i := 0; i < 2; i++ {
		suite.f.advanceClock(2 * time.Hour)
		outcome, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
		suite.Require().NoError(err)
	}

	suite.Equal(StateMintFailedTerminal, outcome.State)
	suite.Equal(OutcomeMintFailed, outcome.Status)
	suite.Contains(outcome.Warning, "permanently")
	suite.Equal(3, outcome.MintRetryCount)

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusConfirmed, charge.Status)
	suite.NotNil(charge.MintFailedAt)
	suite.Nil(charge.NextMintAttemptAt)

	// Further confirmations wait for an operator.
	_, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(3, suite.f.minter.Calls())

	stuck, total, err := suite.f.fulfillment.ListStuckCharges(suite.ctx, defaultPagination())
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
	suite.Equal(outcome.ChargeID, stuck[0].ID)

	// An operator retry starts a fresh budget.
	suite.f.minter.failures = 0
	outcome, err = suite.f.fulfillment.RetryMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, outcome.Status)
	suite.Equal(0, outcome.MintRetryCount)

	_, total, err = suite.f.fulfillment.ListStuckCharges(suite.ctx, defaultPagination())
	suite.Require().NoError(err)
	suite.EqualValues(0, total)
}

func (suite *SyncFulfillmentTestSuite) TestConfirmationWaitsForRetryBackoff() {
	suite.f.minter.failures = 1

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	suite.Equal(OutcomeMintFailed, outcome.Status)

	again, err := suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeMintFailed, again.Status)
	suite.Equal(1, again.MintRetryCount)
	suite.Equal(1, suite.f.minter.Calls())

	suite.f.advanceClock(2 * time.Hour)
	again, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, again.Status)
	suite.Equal(2, suite.f.minter.Calls())
}

func (suite *SyncFulfillmentTestSuite) TestMintTimeoutCountsAsFailure() {
	suite.f.fulfillment.config.MintTimeout = 50 * time.Millisecond
	suite.f.minter.block = make(chan struct{})
	defer close(suite.f.minter.block)

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	suite.Equal(OutcomeMintFailed, outcome.Status)
	suite.Equal(1, outcome.MintRetryCount)
	suite.Contains(outcome.Warning, "timed out")
}

func (suite *SyncFulfillmentTestSuite) TestConfirmIsIdempotent() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	before := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)

	again, err := suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)

	after := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(1, suite.f.minter.Calls())
	suite.Equal(outcome.TokenID, again.TokenID)
	suite.Equal(*before.MintedTokenID, *after.MintedTokenID)
	suite.Equal(*before.MintTxHash, *after.MintTxHash)
	suite.Equal(before.Status, after.Status)
	suite.Equal(before.MintRetryCount, after.MintRetryCount)
}

func (suite *SyncFulfillmentTestSuite) TestConcurrentConfirmationsMintOnce() {
	suite.f.fulfillment.confirmation = WebhookConfirmation{}

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
			suite.NoError(err)
		}()
	}
	wg.Wait()

	suite.Equal(1, suite.f.minter.Calls())
	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.True(charge.IsMinted())
}

func (suite *SyncFulfillmentTestSuite) TestPurchaseWithoutWalletSkipsMint() {
	req := suite.f.purchaseRequest(1)
	req.WalletAddress = ""

	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, req)
	suite.Require().NoError(err)

	suite.Equal(OutcomeCompleted, outcome.Status)
	suite.Equal(StateConfirmed, outcome.State)
	suite.Empty(outcome.TokenID)
	suite.Equal(0, suite.f.minter.Calls())

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusConfirmed, charge.Status)
	suite.Equal(0, charge.MintRetryCount)
	suite.Equal(models.TicketStatusReserved, charge.Tickets[0].Status)
}

func (suite *SyncFulfillmentTestSuite) TestRetryMintRequiresPayment() {
	suite.f.fulfillment.confirmation = WebhookConfirmation{}
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	_, err = suite.f.fulfillment.RetryMint(suite.ctx, outcome.ChargeID)
	var validationErr *ValidationError
	suite.True(errors.As(err, &validationErr))

	_, err = suite.f.fulfillment.RetryMint(suite.ctx, uuid.New())
	suite.ErrorIs(err, ErrChargeNotFound)
}

func TestSyncFulfillmentSuite(t *testing.T) {
	suite.Run(t, new(SyncFulfillmentTestSuite))
}

type WebhookFulfillmentTestSuite struct {
	suite.Suite
	f   *fulfillmentFixture
	ctx context.Context
}

func (suite *WebhookFulfillmentTestSuite) SetupTest() {
	suite.f = newFulfillmentFixture(suite.T(), config.ModeWebhook, 1)
	suite.ctx = context.Background()
}

func (suite *WebhookFulfillmentTestSuite) TestPurchaseWaitsForConfirmation() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	suite.Equal(OutcomePending, outcome.Status)
	suite.Equal(StateAwaitingConfirmation, outcome.State)
	suite.Contains(outcome.HostedCheckoutURL, "/checkout/sandbox/sbx_")
	suite.Equal(0, suite.f.minter.Calls())

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusPending, charge.Status)
	suite.Equal(config.ModeWebhook, charge.FulfillmentMode)
	suite.Equal(models.TicketStatusReserved, charge.Tickets[0].Status)

	outcome, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, outcome.Status)
	suite.Equal(1, suite.f.minter.Calls())
}

func (suite *WebhookFulfillmentTestSuite) TestConcurrentPurchasesForLastSeat() {
	var wg sync.WaitGroup
	results := make([]*FulfillmentOutcome, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
		}(i)
	}
	wg.Wait()

	var winner *FulfillmentOutcome
	exceeded := 0
	for i := range errs {
		var capErr *CapacityExceededError
		switch {
		case errs[i] == nil:
			winner = results[i]
		case errors.As(errs[i], &capErr):
			exceeded++
		default:
			suite.Failf("unexpected error", "%v", errs[i])
		}
	}

	suite.Require().NotNil(winner)
	suite.Equal(1, exceeded)
	suite.Equal([]string{"001"}, winner.Seats)
	suite.Equal([]int{1}, activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID))
}

func (suite *WebhookFulfillmentTestSuite) TestFailAndDelayTransitions() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	id := outcome.ChargeID

	delayed, err := suite.f.fulfillment.MarkDelayed(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(models.ChargeStatusDelayed, delayed.ChargeStatus)

	delayed, err = suite.f.fulfillment.MarkDelayed(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(models.ChargeStatusDelayed, delayed.ChargeStatus)

	failed, err := suite.f.fulfillment.FailCharge(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(OutcomeFailed, failed.Status)
	suite.Equal(StateCanceled, failed.State)
	suite.Empty(failed.Seats)

	failed, err = suite.f.fulfillment.FailCharge(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(models.ChargeStatusFailed, failed.ChargeStatus)
	suite.Equal(1, suite.f.notifier.Count())

	// Delayed never moves a failed charge backwards.
	again, err := suite.f.fulfillment.MarkDelayed(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(models.ChargeStatusFailed, again.ChargeStatus)
}

func (suite *WebhookFulfillmentTestSuite) TestFailNeverDowngradesConfirmedCharge() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	_, err = suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)

	failed, err := suite.f.fulfillment.FailCharge(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, failed.Status)
	suite.Equal(models.ChargeStatusConfirmed, failed.ChargeStatus)

	_, err = suite.f.fulfillment.FailCharge(suite.ctx, uuid.New())
	suite.ErrorIs(err, ErrChargeNotFound)
}

func (suite *WebhookFulfillmentTestSuite) TestFailedCheckoutFreesSeatForNextBuyer() {
	abandoned, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	_, err = suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	var capErr *CapacityExceededError
	suite.Require().True(errors.As(err, &capErr))

	_, err = suite.f.fulfillment.FailCharge(suite.ctx, abandoned.ChargeID)
	suite.Require().NoError(err)

	charge := loadCharge(suite.T(), suite.f.db, abandoned.ChargeID)
	suite.Equal(models.ChargeStatusFailed, charge.Status)
	suite.Equal(models.TicketStatusCanceled, charge.Tickets[0].Status)

	snapshot, err := suite.f.capacity.CheckCapacity(suite.ctx, suite.f.event.ID, suite.f.tier.ID)
	suite.Require().NoError(err)
	suite.False(snapshot.SoldOut)
	suite.EqualValues(0, snapshot.CurrentCount)

	next, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	suite.Equal([]string{"001"}, next.Seats)
	suite.Equal([]int{1}, activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID))
}

func (suite *WebhookFulfillmentTestSuite) TestLateConfirmationReinstatesSeat() {
	outcome, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	_, err = suite.f.fulfillment.FailCharge(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)

	confirmed, err := suite.f.fulfillment.ConfirmAndMint(suite.ctx, outcome.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, confirmed.Status)
	suite.Equal(StateMinted, confirmed.State)
	suite.Equal([]string{"001"}, confirmed.Seats)
	suite.Equal(1, suite.f.minter.Calls())

	charge := loadCharge(suite.T(), suite.f.db, outcome.ChargeID)
	suite.Equal(models.ChargeStatusConfirmed, charge.Status)
	suite.Equal(models.TicketStatusMinted, charge.Tickets[0].Status)
}

func (suite *WebhookFulfillmentTestSuite) TestLateConfirmationWithoutRoomWaitsForOperator() {
	late, err := suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)
	_, err = suite.f.fulfillment.FailCharge(suite.ctx, late.ChargeID)
	suite.Require().NoError(err)

	// Another buyer takes the released seat before the payment settles.
	_, err = suite.f.fulfillment.InitiatePurchase(suite.ctx, suite.f.purchaseRequest(1))
	suite.Require().NoError(err)

	outcome, err := suite.f.fulfillment.ConfirmAndMint(suite.ctx, late.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeMintFailed, outcome.Status)
	suite.Equal(StateMintFailedTerminal, outcome.State)
	suite.Contains(outcome.Warning, "seats were released")
	suite.Equal(0, suite.f.minter.Calls())

	stuck, total, err := suite.f.fulfillment.ListStuckCharges(suite.ctx, defaultPagination())
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
	suite.Equal(late.ChargeID, stuck[0].ID)

	capacity := 2
	_, err = suite.f.capacity.SetTierCapacity(suite.ctx, suite.f.event.ID, suite.f.tier.ID, &capacity)
	suite.Require().NoError(err)

	outcome, err = suite.f.fulfillment.RetryMint(suite.ctx, late.ChargeID)
	suite.Require().NoError(err)
	suite.Equal(OutcomeCompleted, outcome.Status)
	suite.Equal([]string{"002"}, outcome.Seats)
	suite.Equal(1, suite.f.minter.Calls())
	suite.Equal([]int{1, 2}, activeSeats(suite.T(), suite.f.db, suite.f.event.ID, suite.f.tier.ID))
}

func TestWebhookFulfillmentSuite(t *testing.T) {
	suite.Run(t, new(WebhookFulfillmentTestSuite))
}

func TestBackoffDoublesUpToLimit(t *testing.T) {
	s := &FulfillmentService{config: config.FulfillmentConfig{
		RetryBackoff: 10 * time.Second,
		MaxBackoff:   time.Minute,
	}}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, time.Minute},
		{9, time.Minute},
	}
	for _, tc := range cases {
		if got := s.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDeriveState(t *testing.T) {
	token := "42"
	providerID := "sbx_1"
	now := time.Now()

	cases := []struct {
		name   string
		charge models.Charge
		want   FulfillmentState
	}{
		{"requested", models.Charge{}, StateRequested},
		{"charge created", models.Charge{Status: models.ChargeStatusPending}, StateChargeCreated},
		{"reserved", models.Charge{Status: models.ChargeStatusPending, Tickets: []models.Ticket{{}}}, StateReserved},
		{"awaiting", models.Charge{Status: models.ChargeStatusDelayed, ProviderChargeID: &providerID}, StateAwaitingConfirmation},
		{"confirmed", models.Charge{Status: models.ChargeStatusConfirmed}, StateConfirmed},
		{"retrying", models.Charge{Status: models.ChargeStatusRetrying}, StateMintFailedRetrying},
		{"terminal", models.Charge{Status: models.ChargeStatusConfirmed, MintFailedAt: &now}, StateMintFailedTerminal},
		{"minted", models.Charge{Status: models.ChargeStatusConfirmed, MintedTokenID: &token}, StateMinted},
		{"failed", models.Charge{Status: models.ChargeStatusFailed}, StateFailed},
		{"canceled", models.Charge{Status: models.ChargeStatusFailed, Tickets: []models.Ticket{{Status: models.TicketStatusCanceled}}}, StateCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveState(&tc.charge); got != tc.want {
				t.Errorf("DeriveState() = %s, want %s", got, tc.want)
			}
		})
	}
}

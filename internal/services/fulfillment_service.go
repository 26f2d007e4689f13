// internal/services/fulfillment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/database"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/monitoring"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// leaseMargin is added to the per-ticket mint timeout when sizing a lease.
const leaseMargin = 30 * time.Second

// FulfillmentState is where a purchase sits in the payment-to-mint
// lifecycle. It is always derived from the stored charge.
type FulfillmentState string

const (
	StateRequested            FulfillmentState = "requested"
	StateReserved             FulfillmentState = "reserved"
	StateChargeCreated        FulfillmentState = "charge_created"
	StateAwaitingConfirmation FulfillmentState = "awaiting_confirmation"
	StateConfirmed            FulfillmentState = "confirmed"
	StateMinted               FulfillmentState = "minted"
	StateMintFailedRetrying   FulfillmentState = "mint_failed_retrying"
	StateMintFailedTerminal   FulfillmentState = "mint_failed_terminal"
	StateFailed               FulfillmentState = "failed"
	StateCanceled             FulfillmentState = "canceled"
)

// Outcome statuses reported to callers.
const (
	OutcomePending    = "pending"
	OutcomeCompleted  = "completed"
	OutcomeMintFailed = "mint-failed"
	OutcomeFailed     = "failed"
)

type PurchaseRequest struct {
	EventID       uuid.UUID       `json:"event_id" validate:"required"`
	TierID        uuid.UUID       `json:"tier_id" validate:"required"`
	Quantity      int             `json:"quantity" validate:"min=1"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	WalletAddress string          `json:"wallet_address,omitempty" validate:"omitempty,eth_addr"`
	Email         string          `json:"email,omitempty" validate:"omitempty,email"`
	BuyerID       *uuid.UUID      `json:"-"`
}

type FulfillmentOutcome struct {
	ChargeID          uuid.UUID           `json:"charge_id"`
	Status            string              `json:"status"`
	State             FulfillmentState    `json:"state"`
	ChargeStatus      models.ChargeStatus `json:"charge_status"`
	HostedCheckoutURL string              `json:"hosted_checkout_url,omitempty"`
	TokenID           string              `json:"token_id,omitempty"`
	TokenIDs          []string            `json:"token_ids,omitempty"`
	Seats             []string            `json:"seats,omitempty"`
	MintRetryCount    int                 `json:"mint_retry_count"`
	Warning           string              `json:"warning,omitempty"`
	WalletAddress     string              `json:"-"`
}

// FulfillmentDeps are the collaborators of the orchestrator. A nil
// Confirmation is chosen from FULFILLMENT_MODE.
type FulfillmentDeps struct {
	Events       EventLookup
	Capacity     *CapacityService
	Charges      *ChargeStore
	Gateway      PaymentGateway
	Minter       Minter
	Metadata     MetadataStore
	Notifier     Notifier
	Confirmation ConfirmationStrategy
}

type FulfillmentService struct {
	db             *gorm.DB
	config         config.FulfillmentConfig
	paymentTimeout time.Duration

	events       EventLookup
	capacity     *CapacityService
	charges      *ChargeStore
	gateway      PaymentGateway
	minter       Minter
	metadata     MetadataStore
	notifier     Notifier
	confirmation ConfirmationStrategy

	now func() time.Time
}

func NewFulfillmentService(db *gorm.DB, cfg *config.Config, deps FulfillmentDeps) *FulfillmentService {
	s := &FulfillmentService{
		db:             db,
		config:         cfg.Fulfillment,
		paymentTimeout: cfg.Payment.Timeout,
		events:         deps.Events,
		capacity:       deps.Capacity,
		charges:        deps.Charges,
		gateway:        deps.Gateway,
		minter:         deps.Minter,
		metadata:       deps.Metadata,
		notifier:       deps.Notifier,
		confirmation:   deps.Confirmation,
		now:            func() time.Time { return time.Now().UTC() },
	}

	if s.events == nil {
		s.events = NewEventDirectory(db)
	}
	if s.capacity == nil {
		s.capacity = NewCapacityService(db)
	}
	if s.charges == nil {
		s.charges = NewChargeStore(db)
	}
	if s.notifier == nil {
		s.notifier = &NotificationService{}
	}
	if s.confirmation == nil {
		s.confirmation = NewConfirmationStrategy(cfg.Fulfillment.Mode)
	}

	return s
}

// InitiatePurchase reserves seats, creates the provider charge and hands the
// committed charge to the confirmation strategy.
func (s *FulfillmentService) InitiatePurchase(ctx context.Context, req *PurchaseRequest) (*FulfillmentOutcome, error) {
	if err := validatePurchase(req); err != nil {
		monitoring.TrackReservation("invalid", 0)
		return nil, err
	}

	event, err := s.events.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsPurchasable() {
		return nil, newValidationError("event_id", "event is not on sale (status %s)", event.Status)
	}

	tier, err := s.events.GetTier(ctx, req.EventID, req.TierID)
	if err != nil {
		return nil, err
	}

	expected := tier.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	if !req.TotalPrice.Equal(expected) {
		return nil, newValidationError("total_price", "must equal %s for %d tickets", expected.StringFixed(2), req.Quantity)
	}

	charge := &models.Charge{
		Provider:        s.gateway.Name(),
		Status:          models.ChargeStatusPending,
		Amount:          expected,
		Currency:        tier.Currency,
		Quantity:        req.Quantity,
		Email:           req.Email,
		BuyerID:         req.BuyerID,
		FulfillmentMode: s.confirmation.Name(),
	}
	charge.ID = uuid.New()
	if req.WalletAddress != "" {
		wallet := req.WalletAddress
		charge.WalletAddress = &wallet
	}

	logger := logrus.WithFields(logrus.Fields{
		"charge_id": charge.ID,
		"event_id":  req.EventID,
		"tier_id":   req.TierID,
		"quantity":  req.Quantity,
	})

	var tickets []models.Ticket
	var providerCharge *ProviderCharge
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := s.charges.Create(tx, charge); err != nil {
			return err
		}

		reserved, err := s.capacity.ReserveSeats(tx, SeatReservation{
			EventID:     req.EventID,
			TierID:      req.TierID,
			ChargeID:    &charge.ID,
			Quantity:    req.Quantity,
			OwnerWallet: charge.WalletAddress,
		})
		if err != nil {
			return err
		}

		// The tier lock is held until commit, so a failed charge releases
		// its seats without leaving a gap in the numbering.
		pc, err := s.createProviderCharge(ctx, ChargeRequest{
			ChargeID:    charge.ID,
			Name:        fmt.Sprintf("%s - %s", event.Title, tier.Name),
			Description: fmt.Sprintf("%d x %s ticket for %s", req.Quantity, tier.Name, event.Title),
			UnitAmount:  tier.Price,
			Quantity:    req.Quantity,
			Amount:      expected,
			Currency:    tier.Currency,
			Email:       req.Email,
			Metadata: map[string]string{
				"event_id": req.EventID.String(),
				"tier_id":  req.TierID.String(),
				"quantity": fmt.Sprintf("%d", req.Quantity),
			},
		})
		if err != nil {
			return err
		}

		if err := s.charges.AttachProviderCharge(tx, charge.ID, pc); err != nil {
			return err
		}

		tickets = reserved
		providerCharge = pc
		return nil
	})
	if err != nil {
		var capErr *CapacityExceededError
		var gwErr *PaymentGatewayError
		switch {
		case errors.As(err, &capErr):
			monitoring.TrackReservation("capacity_exceeded", 0)
			logger.WithField("remaining", capErr.Remaining).Info("Purchase rejected, tier capacity exceeded")
		case errors.As(err, &gwErr):
			monitoring.TrackReservation("gateway_error", 0)
			logger.WithError(err).Error("Payment gateway failed, seats released")
			s.recordFailedCharge(ctx, charge, gwErr)
		default:
			monitoring.TrackReservation("error", 0)
			logger.WithError(err).Error("Purchase failed")
		}
		return nil, err
	}

	charge.ProviderChargeID = &providerCharge.ProviderChargeID
	charge.HostedURL = providerCharge.HostedURL
	charge.Tickets = tickets

	monitoring.TrackReservation("reserved", len(tickets))
	monitoring.TrackChargeTransition(string(models.ChargeStatusPending))
	logger.WithFields(logrus.Fields{
		"provider":           charge.Provider,
		"provider_charge_id": providerCharge.ProviderChargeID,
		"first_seat":         tickets[0].Seat,
	}).Info("Charge created")

	return s.confirmation.AfterChargeCreated(ctx, s, charge)
}

func (s *FulfillmentService) createProviderCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	pc, err := s.gateway.CreateCharge(gwCtx, req)
	if err != nil {
		return nil, &PaymentGatewayError{Provider: s.gateway.Name(), Err: err}
	}
	if pc == nil || pc.ProviderChargeID == "" {
		return nil, &PaymentGatewayError{Provider: s.gateway.Name(), Err: errors.New("provider returned no charge id")}
	}
	return pc, nil
}

// recordFailedCharge keeps an operator-visible record of a purchase whose
// charge could not be created. The reservation was rolled back, so the row
// owns no tickets.
func (s *FulfillmentService) recordFailedCharge(ctx context.Context, charge *models.Charge, gwErr *PaymentGatewayError) {
	failed := *charge
	failed.Status = models.ChargeStatusFailed
	failed.FailureReason = gwErr.Error()
	failed.ProviderChargeID = nil
	failed.HostedURL = ""
	failed.Tickets = nil

	if err := s.charges.Create(s.db.WithContext(ctx), &failed); err != nil {
		logrus.WithError(err).WithField("charge_id", charge.ID).Error("Failed to record failed charge")
		return
	}
	monitoring.TrackChargeTransition(string(models.ChargeStatusFailed))
}

// ConfirmAndMint marks the charge paid and mints every unminted ticket on
// it. Repeated calls never mint a ticket twice. Mint failures are recorded
// on the charge and reported as a warning, not an error. A charge waiting
// out its retry backoff is left alone until the next attempt is due.
func (s *FulfillmentService) ConfirmAndMint(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error) {
	return s.confirmAndMint(ctx, chargeID, false)
}

// confirmAndMint skips the backoff check when ignoreBackoff is set, for the
// operator retry and the retry worker which only picks due charges.
func (s *FulfillmentService) confirmAndMint(ctx context.Context, chargeID uuid.UUID, ignoreBackoff bool) (*FulfillmentOutcome, error) {
	charge, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithField("charge_id", chargeID)
	if charge.ProviderChargeID != nil {
		logger = logger.WithField("provider_charge_id", *charge.ProviderChargeID)
	}

	if charge.IsMinted() {
		logger.Info("Charge already minted, nothing to do")
		return BuildOutcome(charge), nil
	}
	if charge.MintTerminal() {
		logger.Info("Charge exhausted its mint retries, waiting for operator")
		return BuildOutcome(charge), nil
	}

	now := s.now()
	if !ignoreBackoff && charge.Status == models.ChargeStatusRetrying &&
		charge.NextMintAttemptAt != nil && charge.NextMintAttemptAt.After(now) {
		logger.WithField("next_attempt_at", *charge.NextMintAttemptAt).Info("Mint retry not due yet")
		return BuildOutcome(charge), nil
	}

	if !charge.Status.Paid() {
		confirmed, err := s.charges.MarkConfirmed(ctx, chargeID, now)
		if err != nil {
			return nil, err
		}
		if confirmed {
			monitoring.TrackChargeTransition(string(models.ChargeStatusConfirmed))
			logger.Info("Charge confirmed")
		}
		if charge, err = s.charges.FindByID(ctx, chargeID); err != nil {
			return nil, err
		}
	}

	if seatsReleased(charge) {
		if charge, err = s.reinstateSeats(ctx, charge, now); err != nil {
			return nil, err
		}
		if charge.MintTerminal() {
			outcome := BuildOutcome(charge)
			s.notify(ctx, outcome)
			return outcome, nil
		}
	}

	if len(charge.Tickets) == 0 || charge.WalletAddress == nil || *charge.WalletAddress == "" {
		logger.Info("Charge confirmed without a mint, no tickets or wallet")
		outcome := BuildOutcome(charge)
		s.notify(ctx, outcome)
		return outcome, nil
	}

	lease := s.config.MintTimeout*time.Duration(len(charge.Tickets)) + leaseMargin
	claimed, err := s.charges.ClaimMintLease(ctx, chargeID, now, lease)
	if err != nil {
		return nil, err
	}
	if !claimed {
		logger.Info("Mint already in progress or finished elsewhere")
		current, err := s.charges.FindByID(ctx, chargeID)
		if err != nil {
			return nil, err
		}
		return BuildOutcome(current), nil
	}

	// Reload under the lease so tickets minted by the previous holder are
	// seen as minted.
	if charge, err = s.charges.FindByID(ctx, chargeID); err != nil {
		return nil, err
	}

	mintErr := s.mintTickets(ctx, charge)
	if mintErr == nil {
		first := charge.Tickets[0]
		if _, err := s.charges.RecordMintSuccess(ctx, chargeID, *first.TokenID, stringValue(first.MintTxHash)); err != nil {
			return nil, err
		}
		logger.WithField("token_id", *first.TokenID).Info("Tickets minted")
	} else {
		failure, err := s.charges.RecordMintFailure(ctx, chargeID, mintErr.Error(), s.now(), s.config.MaxMintRetries, s.backoff)
		if err != nil {
			return nil, fmt.Errorf("failed to record mint failure (%v): %w", mintErr, err)
		}
		entry := logger.WithError(mintErr).WithField("retry_count", failure.RetryCount)
		if failure.Terminal {
			entry.Error("Mint failed permanently, retries exhausted")
		} else {
			entry.WithField("next_attempt_at", failure.NextTry).Warn("Mint failed, retry scheduled")
		}
	}

	current, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	outcome := BuildOutcome(current)
	s.notify(ctx, outcome)
	return outcome, nil
}

// reinstateSeats handles a payment confirmed after its seats were released.
// When the tier has filled up in the meantime the charge is parked for an
// operator instead of minting.
func (s *FulfillmentService) reinstateSeats(ctx context.Context, charge *models.Charge, now time.Time) (*models.Charge, error) {
	logger := logrus.WithField("charge_id", charge.ID)

	restored, err := s.capacity.ReinstateSeats(ctx, charge.ID)
	var capErr *CapacityExceededError
	switch {
	case errors.As(err, &capErr):
		reason := fmt.Sprintf("seats were released before payment was confirmed: %v", capErr)
		if err := s.charges.MarkSeatsUnavailable(ctx, charge.ID, reason, now); err != nil {
			return nil, err
		}
		logger.WithField("remaining", capErr.Remaining).Error("Paid charge lost its seats, waiting for operator")
	case err != nil:
		return nil, err
	default:
		logger.WithField("restored", restored).Warn("Seats reinstated for late payment")
	}

	return s.charges.FindByID(ctx, charge.ID)
}

// mintTickets mints the charge's unminted tickets in seat order and stops
// at the first failure. Minted tickets are updated in place.
func (s *FulfillmentService) mintTickets(ctx context.Context, charge *models.Charge) error {
	event, err := s.events.GetEventByID(ctx, charge.Tickets[0].EventID)
	if err != nil {
		return fmt.Errorf("failed to load event for metadata: %w", err)
	}

	for i := range charge.Tickets {
		ticket := &charge.Tickets[i]
		if ticket.IsMinted() {
			continue
		}

		result, uri, err := s.mintTicket(ctx, ticket, event, *charge.WalletAddress)
		if err != nil {
			return &MintingError{TicketID: ticket.ID, Err: err}
		}

		mintedAt := s.now()
		if _, err := s.charges.MarkTicketMinted(ctx, ticket.ID, result, uri, mintedAt); err != nil {
			return err
		}

		ticket.Status = models.TicketStatusMinted
		ticket.TokenID = &result.TokenID
		ticket.MintTxHash = &result.TransactionHash
		ticket.MetadataURI = uri
		ticket.MintedAt = &mintedAt
	}

	return nil
}

type mintReply struct {
	result *MintResult
	err    error
}

// mintTicket bounds metadata upload and the mint call by MINT_TIMEOUT, even
// when the minter ignores its context.
func (s *FulfillmentService) mintTicket(ctx context.Context, ticket *models.Ticket, event *EventInfo, wallet string) (*MintResult, string, error) {
	mintCtx, cancel := context.WithTimeout(ctx, s.config.MintTimeout)
	defer cancel()

	var uri string
	if s.metadata != nil {
		var err error
		if uri, err = s.metadata.StoreTicketMetadata(mintCtx, ticket, event); err != nil {
			return nil, "", err
		}
	}

	req := MintRequest{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		TierID:      ticket.TierID,
		Recipient:   wallet,
		Section:     ticket.Section,
		Row:         ticket.Row,
		Seat:        ticket.Seat,
		MetadataURI: uri,
	}

	start := time.Now()
	replies := make(chan mintReply, 1)
	go func() {
		result, err := s.minter.Mint(mintCtx, req)
		replies <- mintReply{result: result, err: err}
	}()

	select {
	case reply := <-replies:
		if reply.err == nil && (reply.result == nil || reply.result.TokenID == "") {
			reply.err = errors.New("minter returned no token id")
		}
		if reply.err != nil {
			monitoring.TrackMint("error", time.Since(start))
			return nil, "", reply.err
		}
		monitoring.TrackMint("success", time.Since(start))
		return reply.result, uri, nil
	case <-mintCtx.Done():
		monitoring.TrackMint("timeout", time.Since(start))
		return nil, "", fmt.Errorf("mint timed out after %s: %w", s.config.MintTimeout, mintCtx.Err())
	}
}

// backoff doubles the retry delay per failed attempt up to MINT_MAX_BACKOFF.
func (s *FulfillmentService) backoff(attempt int) time.Duration {
	delay := s.config.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if s.config.MaxBackoff > 0 && delay >= s.config.MaxBackoff {
			return s.config.MaxBackoff
		}
	}
	return delay
}

// FailCharge records a provider-reported payment failure and releases the
// charge's reserved seats. Confirmed payments are never downgraded and
// repeats are no-ops.
func (s *FulfillmentService) FailCharge(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error) {
	if _, err := s.charges.FindByID(ctx, chargeID); err != nil {
		return nil, err
	}

	var changed bool
	var released int64
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		changed, err = s.charges.MarkFailed(tx, chargeID, "payment failed at provider")
		if err != nil || !changed {
			return err
		}
		released, err = s.capacity.ReleaseSeats(tx, chargeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	charge, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	outcome := BuildOutcome(charge)
	if changed {
		monitoring.TrackChargeTransition(string(models.ChargeStatusFailed))
		logrus.WithFields(logrus.Fields{
			"charge_id":      chargeID,
			"seats_released": released,
		}).Info("Charge failed")
		s.notify(ctx, outcome)
	} else {
		logrus.WithFields(logrus.Fields{
			"charge_id": chargeID,
			"status":    charge.Status,
		}).Info("Charge failure ignored, charge is not pending")
	}
	return outcome, nil
}

// MarkDelayed records that the provider is still settling the payment.
func (s *FulfillmentService) MarkDelayed(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error) {
	if _, err := s.charges.FindByID(ctx, chargeID); err != nil {
		return nil, err
	}

	changed, err := s.charges.MarkDelayed(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	charge, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	if changed {
		monitoring.TrackChargeTransition(string(models.ChargeStatusDelayed))
		logrus.WithField("charge_id", chargeID).Info("Charge delayed")
	}
	return BuildOutcome(charge), nil
}

// RetryMint is the operator path for a charge whose mint is stuck. A charge
// that exhausted its retries gets a fresh budget first.
func (s *FulfillmentService) RetryMint(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error) {
	charge, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.IsMinted() {
		return BuildOutcome(charge), nil
	}
	if !charge.Status.Paid() {
		return nil, newValidationError("charge_id", "charge has not been paid (status %s)", charge.Status)
	}

	if charge.MintTerminal() {
		if _, err := s.charges.ResetTerminal(ctx, chargeID); err != nil {
			return nil, err
		}
		logrus.WithField("charge_id", chargeID).Info("Terminal mint failure reset by operator")
	}

	return s.confirmAndMint(ctx, chargeID, true)
}

func (s *FulfillmentService) GetOutcome(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error) {
	charge, err := s.charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return BuildOutcome(charge), nil
}

func (s *FulfillmentService) ListStuckCharges(ctx context.Context, params utils.PaginationParams) ([]models.Charge, int64, error) {
	return s.charges.ListStuck(ctx, utils.NormalizePagination(params))
}

func (s *FulfillmentService) notify(ctx context.Context, outcome *FulfillmentOutcome) {
	if err := s.notifier.NotifyFulfillment(ctx, outcome); err != nil {
		logrus.WithError(err).WithField("charge_id", outcome.ChargeID).Warn("Fulfillment notification failed")
	}
}

func validatePurchase(req *PurchaseRequest) error {
	if req == nil {
		return newValidationError("", "purchase request is required")
	}
	if req.Quantity < 1 {
		return newValidationError("quantity", "must be at least 1")
	}
	if err := utils.ValidateStruct(req); err != nil {
		if fieldErrs := utils.GetValidationErrors(err); len(fieldErrs) > 0 {
			return &ValidationError{Field: fieldErrs[0].Field, Message: fieldErrs[0].Message}
		}
		return newValidationError("", "%v", err)
	}
	return nil
}

// DeriveState maps a stored charge onto the fulfillment lifecycle.
func DeriveState(charge *models.Charge) FulfillmentState {
	switch {
	case charge.IsMinted():
		return StateMinted
	case charge.MintTerminal():
		return StateMintFailedTerminal
	}

	switch charge.Status {
	case models.ChargeStatusFailed:
		if seatsReleased(charge) {
			return StateCanceled
		}
		return StateFailed
	case models.ChargeStatusRetrying:
		return StateMintFailedRetrying
	case models.ChargeStatusConfirmed:
		return StateConfirmed
	case models.ChargeStatusPending, models.ChargeStatusDelayed:
		if charge.ProviderChargeID != nil {
			return StateAwaitingConfirmation
		}
		if len(charge.Tickets) > 0 {
			return StateReserved
		}
		return StateChargeCreated
	}
	return StateRequested
}

// BuildOutcome renders the caller-facing view of a charge.
func BuildOutcome(charge *models.Charge) *FulfillmentOutcome {
	outcome := &FulfillmentOutcome{
		ChargeID:       charge.ID,
		State:          DeriveState(charge),
		ChargeStatus:   charge.Status,
		MintRetryCount: charge.MintRetryCount,
	}
	if charge.WalletAddress != nil {
		outcome.WalletAddress = *charge.WalletAddress
	}

	for _, ticket := range charge.Tickets {
		if ticket.Status == models.TicketStatusCanceled {
			continue
		}
		outcome.Seats = append(outcome.Seats, ticket.Seat)
		if ticket.IsMinted() {
			outcome.TokenIDs = append(outcome.TokenIDs, *ticket.TokenID)
		}
	}

	switch outcome.State {
	case StateMinted:
		outcome.Status = OutcomeCompleted
		outcome.TokenID = *charge.MintedTokenID
	case StateConfirmed:
		outcome.Status = OutcomeCompleted
	case StateMintFailedRetrying, StateMintFailedTerminal:
		outcome.Status = OutcomeMintFailed
		outcome.Warning = mintWarning(charge, outcome.State)
	case StateFailed, StateCanceled:
		outcome.Status = OutcomeFailed
	default:
		outcome.Status = OutcomePending
		outcome.HostedCheckoutURL = charge.HostedURL
	}

	return outcome
}

func mintWarning(charge *models.Charge, state FulfillmentState) string {
	reason := "unknown error"
	if charge.LastMintError != nil {
		reason = *charge.LastMintError
	}
	if state == StateMintFailedTerminal {
		return "payment received but ticket minting failed permanently: " + reason
	}
	return "payment received, ticket minting will be retried: " + reason
}

// seatsReleased reports whether any of the charge's seats were canceled.
func seatsReleased(charge *models.Charge) bool {
	for _, ticket := range charge.Tickets {
		if ticket.Status == models.TicketStatusCanceled {
			return true
		}
	}
	return false
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

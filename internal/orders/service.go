package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/internal/holdings"
	"github.com/bcolabs/fightcards-backend/internal/pricing"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	"github.com/bcolabs/fightcards-backend/internal/trades"
	"github.com/bcolabs/fightcards-backend/internal/voucher"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

const (
	finalizeClaimScope = "finalize"
	mintMaxRetries     = 3
	mintRetryBackoff   = 200 * time.Millisecond
)

type fighterLoader interface {
	FindByID(ctx context.Context, id int64) (*models.Fighter, error)
}

type quoteCalculator interface {
	Compute(unitPriceCents int64, quantity int) (*pricing.Quote, error)
}

type voucherIssuer interface {
	Issue(recipient uuid.UUID, fighterID int64, quantity int, unitPriceCents int64) (voucher.Voucher, []byte, error)
}

type minter interface {
	VerifyAndMint(ctx context.Context, v voucher.Voucher, signature []byte) (*supply.MintResult, error)
}

type settler interface {
	ApplySettlement(ctx context.Context, input holdings.SettlementInput) (*holdings.SettlementResult, error)
}

type feedPublisher interface {
	PublishMint(ctx context.Context, input trades.PublishMintInput) error
}

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ClaimKey(scope, id string) string
}

// Service drives an order from creation through payment to mint settlement.
type Service interface {
	Quote(ctx context.Context, fighterID int64, quantity int) (*pricing.Quote, *models.Fighter, error)
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, *pricing.Quote, error)
	Get(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	OnPaymentConfirmed(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	OnPaymentFailed(ctx context.Context, orderID uuid.UUID, reason string) error
	Finalize(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	RetrySettlements(ctx context.Context, limit int) (int, error)
	SweepPaid(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ListFailed(ctx context.Context, limit int) ([]models.Order, error)
}

// Params wires the order service dependencies.
type Params struct {
	Repo     Repository
	Fighters fighterLoader
	Pricing  quoteCalculator
	Issuer   voucherIssuer
	Ledger   minter
	Settler  settler
	Feed     feedPublisher
	Claims   claimStore
	ClaimTTL time.Duration
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	fighters fighterLoader
	pricing  quoteCalculator
	issuer   voucherIssuer
	ledger   minter
	settler  settler
	feed     feedPublisher
	claims   claimStore
	claimTTL time.Duration
	logg     *logger.Logger
}

// NewService builds the order service.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Fighters == nil {
		return nil, fmt.Errorf("fighter loader required")
	}
	if p.Pricing == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	if p.Issuer == nil {
		return nil, fmt.Errorf("voucher issuer required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("supply ledger required")
	}
	if p.Settler == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if p.Feed == nil {
		return nil, fmt.Errorf("trade feed required")
	}
	if p.Claims == nil {
		return nil, fmt.Errorf("claim store required")
	}
	if p.ClaimTTL <= 0 {
		p.ClaimTTL = 2 * time.Minute
	}
	return &service{
		repo:     p.Repo,
		fighters: p.Fighters,
		pricing:  p.Pricing,
		issuer:   p.Issuer,
		ledger:   p.Ledger,
		settler:  p.Settler,
		feed:     p.Feed,
		claims:   p.Claims,
		claimTTL: p.ClaimTTL,
		logg:     p.Logger,
	}, nil
}

// Quote prices a prospective purchase without creating anything.
func (s *service) Quote(ctx context.Context, fighterID int64, quantity int) (*pricing.Quote, *models.Fighter, error) {
	fighter, err := s.loadActiveFighter(ctx, fighterID)
	if err != nil {
		return nil, nil, err
	}
	quote, err := s.pricing.Compute(fighter.BasePriceCents, quantity)
	if err != nil {
		return nil, nil, err
	}
	return quote, fighter, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, *pricing.Quote, error) {
	if input.UserID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	quote, fighter, err := s.Quote(ctx, input.FighterID, input.Quantity)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		ID:             uuid.New(),
		UserID:         input.UserID,
		FighterID:      fighter.ID,
		Quantity:       input.Quantity,
		UnitPriceCents: fighter.BasePriceCents,
		Status:         enums.OrderStatusCreated,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, nil, err
	}
	return order, quote, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// OnPaymentConfirmed moves an order from created to paid. Duplicate
// confirmations for an order already paid or minted are absorbed silently;
// confirmations for failed orders are rejected.
func (s *service) OnPaymentConfirmed(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if paymentRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	advanced, err := s.repo.MarkPaid(ctx, orderID, paymentRef)
	if err != nil {
		return err
	}
	if advanced {
		return nil
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment confirmation")
	}
	if err != nil {
		return err
	}
	switch order.Status {
	case enums.OrderStatusPaid, enums.OrderStatusMinted:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"order_id": orderID, "status": order.Status})
	}
}

// OnPaymentFailed fails an order still awaiting payment. Orders already paid
// or minted ignore late failure events.
func (s *service) OnPaymentFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if reason == "" {
		reason = "payment failed"
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment failure")
	}
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusCreated {
		return nil
	}
	_, err = s.repo.MarkFailed(ctx, orderID, reason)
	return err
}

// Finalize turns a paid order into minted units. The redis claim serializes
// concurrent attempts; the conditional paid-to-minted write is the backstop
// if the claim expires mid-flight. Ledger writes are never rolled back: when
// bookkeeping fails afterwards the order stays minted-but-unsettled and the
// settlement retry job finishes the books later.
func (s *service) Finalize(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case enums.OrderStatusMinted:
		if !order.Settled {
			if err := s.settle(ctx, order); err != nil {
				s.warn(ctx, "settlement replay failed", err)
			}
		}
		return s.repo.FindByID(ctx, orderID)
	case enums.OrderStatusFailed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already failed").
			WithDetails(map[string]any{"reason": order.FailureReason})
	case enums.OrderStatusCreated:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been paid")
	}

	claimKey := s.claims.ClaimKey(finalizeClaimScope, orderID.String())
	claimed, err := s.claims.SetNX(ctx, claimKey, "1", s.claimTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring finalize claim")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "finalize already in progress")
	}
	defer func() {
		if err := s.claims.Del(context.WithoutCancel(ctx), claimKey); err != nil {
			s.warn(ctx, "releasing finalize claim", err)
		}
	}()

	result, err := s.mintWithRetry(ctx, order)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && !pkgerrors.IsRetryable(err) {
			if _, failErr := s.repo.MarkFailed(ctx, orderID, string(typed.Code())); failErr != nil {
				s.warn(ctx, "marking order failed", failErr)
			}
		}
		return nil, err
	}

	advanced, err := s.repo.MarkMinted(ctx, orderID, result.MintRef)
	if err != nil {
		return nil, err
	}
	if !advanced {
		// Another finalize won the race after our claim lapsed.
		return s.repo.FindByID(ctx, orderID)
	}

	order.Status = enums.OrderStatusMinted
	order.MintRef = &result.MintRef
	if err := s.settle(ctx, order); err != nil {
		s.warn(ctx, "settlement deferred to retry job", err)
	}
	return s.repo.FindByID(ctx, orderID)
}

func (s *service) mintWithRetry(ctx context.Context, order *models.Order) (*supply.MintResult, error) {
	v, sig, err := s.issuer.Issue(order.UserID, order.FighterID, order.Quantity, order.UnitPriceCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issuing mint voucher")
	}

	var result *supply.MintResult
	backoff := retry.WithMaxRetries(mintMaxRetries, retry.NewExponential(mintRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, mintErr := s.ledger.VerifyAndMint(ctx, v, sig)
		if mintErr != nil {
			if pkgerrors.IsRetryable(mintErr) {
				return retry.RetryableError(mintErr)
			}
			return mintErr
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settle runs the post-mint bookkeeping and flips the settled flag last, so
// a partial failure leaves the order eligible for the retry job.
func (s *service) settle(ctx context.Context, order *models.Order) error {
	if order.MintRef == nil {
		return fmt.Errorf("order %s has no mint ref", order.ID)
	}
	fighter, err := s.fighters.FindByID(ctx, order.FighterID)
	if err != nil {
		return err
	}
	quote, err := s.pricing.Compute(order.UnitPriceCents, order.Quantity)
	if err != nil {
		return err
	}

	settlement, err := s.settler.ApplySettlement(ctx, holdings.SettlementInput{
		OrderID:          order.ID,
		UserID:           order.UserID,
		FighterID:        order.FighterID,
		Quantity:         order.Quantity,
		TotalCents:       quote.TotalCents,
		MintRef:          *order.MintRef,
		PaymentReference: order.PaymentReference,
		LineItems:        quote.LineItems(),
	})
	if err != nil {
		return err
	}

	if err := s.feed.PublishMint(ctx, trades.PublishMintInput{
		UserID:           order.UserID,
		FighterID:        order.FighterID,
		FighterName:      fighter.Name,
		Quantity:         order.Quantity,
		TotalCents:       quote.TotalCents,
		ResultingFanTier: settlement.FanTier,
	}); err != nil {
		// The feed is ephemeral; never hold settlement hostage to it.
		s.warn(ctx, "publishing trade event", err)
	}

	if _, err := s.repo.MarkSettled(ctx, order.ID); err != nil {
		return err
	}
	order.Settled = true
	return nil
}

// RetrySettlements replays bookkeeping for minted orders whose settlement
// previously failed. Returns how many orders were settled.
func (s *service) RetrySettlements(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.FindMintedUnsettled(ctx, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range pending {
		order := pending[i]
		if err := s.settle(ctx, &order); err != nil {
			s.warn(ctx, "settlement retry failed", err)
			continue
		}
		settled++
	}
	return settled, nil
}

// SweepPaid finalizes paid orders the buyer never finalized, so a confirmed
// payment always ends in a mint even when the client went away.
func (s *service) SweepPaid(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("sweep window must be positive")
	}
	cutoff := time.Now().Add(-olderThan)
	stuck, err := s.repo.FindPaidBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	minted := 0
	for _, order := range stuck {
		if _, err := s.Finalize(ctx, order.ID, order.UserID); err != nil {
			s.warn(ctx, "paid order sweep failed", err)
			continue
		}
		minted++
	}
	return minted, nil
}

// ExpireStale fails created orders older than the TTL so abandoned checkouts
// do not linger forever.
func (s *service) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("expiry window must be positive")
	}
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.repo.FindCreatedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range stale {
		advanced, err := s.repo.MarkFailed(ctx, order.ID, "checkout expired")
		if err != nil {
			s.warn(ctx, "expiring stale order", err)
			continue
		}
		if advanced {
			expired++
		}
	}
	return expired, nil
}

func (s *service) ListFailed(ctx context.Context, limit int) ([]models.Order, error) {
	return s.repo.ListByStatus(ctx, enums.OrderStatusFailed, limit)
}

func (s *service) loadActiveFighter(ctx context.Context, fighterID int64) (*models.Fighter, error) {
	if fighterID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id must be positive")
	}
	fighter, err := s.fighters.FindByID(ctx, fighterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fighter not found")
	}
	if err != nil {
		return nil, err
	}
	if !fighter.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "fighter is not purchasable")
	}
	return fighter, nil
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}

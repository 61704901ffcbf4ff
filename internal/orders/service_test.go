package orders

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/internal/fighters"
	"github.com/bcolabs/fightcards-backend/internal/holdings"
	"github.com/bcolabs/fightcards-backend/internal/pricing"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	"github.com/bcolabs/fightcards-backend/internal/trades"
	"github.com/bcolabs/fightcards-backend/internal/voucher"
	"github.com/bcolabs/fightcards-backend/pkg/config"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
)

type fakeLedger struct {
	mu      sync.Mutex
	calls   int
	err     error
	failFor int // fail the first N calls with err
}

func (f *fakeLedger) VerifyAndMint(_ context.Context, v voucher.Voucher, _ []byte) (*supply.MintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.failFor == 0 || f.calls <= f.failFor) {
		return nil, f.err
	}
	refs := make([]uuid.UUID, v.Quantity)
	for i := range refs {
		refs[i] = uuid.New()
	}
	return &supply.MintResult{MintRef: "mint_test", UnitRefs: refs}, nil
}

// cappedLedger grants mints from a fixed remaining supply with a
// compare-and-swap, so concurrent callers contend the way they would on the
// ledger's conditional minted-count increment.
type cappedLedger struct {
	remaining int64
}

func (l *cappedLedger) VerifyAndMint(_ context.Context, v voucher.Voucher, _ []byte) (*supply.MintResult, error) {
	for {
		left := atomic.LoadInt64(&l.remaining)
		if left < int64(v.Quantity) {
			return nil, pkgerrors.New(pkgerrors.CodeSoldOut, "mint would exceed supply cap")
		}
		if atomic.CompareAndSwapInt64(&l.remaining, left, left-int64(v.Quantity)) {
			refs := make([]uuid.UUID, v.Quantity)
			for i := range refs {
				refs[i] = uuid.New()
			}
			return &supply.MintResult{MintRef: "mint_" + uuid.NewString(), UnitRefs: refs}, nil
		}
	}
}

type fakeSettler struct {
	mu     sync.Mutex
	inputs []holdings.SettlementInput
	err    error
}

func (f *fakeSettler) ApplySettlement(_ context.Context, input holdings.SettlementInput) (*holdings.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &holdings.SettlementResult{
		Receipt: &models.Receipt{ID: uuid.New(), OrderID: input.OrderID},
		FanTier: enums.FanTierBronze,
	}, nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []trades.PublishMintInput
	err    error
}

func (f *fakeFeed) PublishMint(_ context.Context, input trades.PublishMintInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, input)
	return nil
}

type fakeClaims struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{held: map[string]bool{}}
}

func (f *fakeClaims) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeClaims) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.held, key)
	}
	return nil
}

func (f *fakeClaims) ClaimKey(scope, id string) string {
	return "fcard:claim:" + scope + ":" + id
}

type orderFixture struct {
	svc     Service
	repo    Repository
	ledger  *fakeLedger
	settler *fakeSettler
	feed    *fakeFeed
	claims  *fakeClaims
	conn    *gorm.DB
}

func setupOrderService(t *testing.T) *orderFixture {
	t.Helper()

	conn := setupOrdersTestDB(t)
	require.NoError(t, conn.Exec(`
CREATE TABLE fighters (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  division TEXT NOT NULL,
  record TEXT NOT NULL DEFAULT '',
  base_price_cents INTEGER NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)

	fightersRepo := fighters.NewRepository(conn)
	require.NoError(t, fightersRepo.Create(context.Background(), &models.Fighter{
		ID: 7, Name: "A. Silva", Division: "Middleweight", BasePriceCents: 500, Active: true,
	}))

	calc, err := pricing.NewCalculator(config.PricingConfig{PlatformFeeBps: 1000, NetworkFeeCents: 25})
	require.NoError(t, err)

	signer, err := voucher.NewEphemeralSigner(10 * time.Minute)
	require.NoError(t, err)

	fixture := &orderFixture{
		repo:    NewRepository(conn),
		ledger:  &fakeLedger{},
		settler: &fakeSettler{},
		feed:    &fakeFeed{},
		claims:  newFakeClaims(),
		conn:    conn,
	}
	fixture.svc, err = NewService(Params{
		Repo:     fixture.repo,
		Fighters: fightersRepo,
		Pricing:  calc,
		Issuer:   signer,
		Ledger:   fixture.ledger,
		Settler:  fixture.settler,
		Feed:     fixture.feed,
		Claims:   fixture.claims,
		ClaimTTL: time.Minute,
	})
	require.NoError(t, err)
	return fixture
}

func createPaidOrder(t *testing.T, f *orderFixture) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, _, err := f.svc.Create(ctx, CreateOrderInput{
		UserID:    uuid.New(),
		FighterID: 7,
		Quantity:  2,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentConfirmed(ctx, order.ID, "pi_123"))
	paid, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	return paid
}

func TestQuoteUsesCatalogPrice(t *testing.T) {
	f := setupOrderService(t)

	quote, fighter, err := f.svc.Quote(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, "A. Silva", fighter.Name)
	assert.Equal(t, int64(1675), quote.TotalCents)

	_, _, err = f.svc.Quote(context.Background(), 999, 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestCreateRejectsInactiveFighter(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	require.NoError(t, f.conn.Model(&models.Fighter{}).
		Where("id = ?", 7).
		Update("active", false).Error)

	_, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestOnPaymentConfirmedIdempotent(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	order, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentConfirmed(ctx, order.ID, "pi_123"))
	require.NoError(t, f.svc.OnPaymentConfirmed(ctx, order.ID, "pi_123"))

	found, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, found.Status)
	assert.Equal(t, "pi_123", *found.PaymentReference)
}

func TestOnPaymentConfirmedRejectsFailedOrder(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	order, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	require.NoError(t, err)
	_, err = f.repo.MarkFailed(ctx, order.ID, "checkout expired")
	require.NoError(t, err)

	err = f.svc.OnPaymentConfirmed(ctx, order.ID, "pi_123")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestOnPaymentConfirmedUnknownOrder(t *testing.T) {
	f := setupOrderService(t)

	err := f.svc.OnPaymentConfirmed(context.Background(), uuid.New(), "pi_123")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestFinalizeHappyPath(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	final, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusMinted, final.Status)
	assert.True(t, final.Settled)
	require.NotNil(t, final.MintRef)
	assert.Equal(t, "mint_test", *final.MintRef)

	require.Len(t, f.settler.inputs, 1)
	settlement := f.settler.inputs[0]
	assert.Equal(t, paid.ID, settlement.OrderID)
	assert.Equal(t, int64(1175), settlement.TotalCents)
	assert.Equal(t, "mint_test", settlement.MintRef)

	require.Len(t, f.feed.events, 1)
	assert.Equal(t, "A. Silva", f.feed.events[0].FighterName)
	// The feed entry carries the tier the settlement produced.
	assert.Equal(t, enums.FanTierBronze, f.feed.events[0].ResultingFanTier)

	// The finalize claim was released.
	assert.Empty(t, f.claims.held)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	_, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)

	again, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusMinted, again.Status)

	// One mint, one settlement, even after the replay.
	assert.Equal(t, 1, f.ledger.calls)
	assert.Len(t, f.settler.inputs, 1)
}

func TestConcurrentFinalizeAtCapMintsExactlyOnce(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	// Serialize sqlite access so the goroutines contend on the ledger, not on
	// the test database handle.
	sqlDB, err := f.conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	calc, err := pricing.NewCalculator(config.PricingConfig{PlatformFeeBps: 1000, NetworkFeeCents: 25})
	require.NoError(t, err)
	signer, err := voucher.NewEphemeralSigner(10 * time.Minute)
	require.NoError(t, err)

	// Supply for exactly one of the two orders.
	ledger := &cappedLedger{remaining: 2}
	svc, err := NewService(Params{
		Repo:     f.repo,
		Fighters: fighters.NewRepository(f.conn),
		Pricing:  calc,
		Issuer:   signer,
		Ledger:   ledger,
		Settler:  f.settler,
		Feed:     f.feed,
		Claims:   f.claims,
		ClaimTTL: time.Minute,
	})
	require.NoError(t, err)

	first := createPaidOrder(t, f)
	second := createPaidOrder(t, f)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Finalize(ctx, first.ID, first.UserID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Finalize(ctx, second.ID, second.UserID)
	}()
	wg.Wait()

	minted, soldOut := 0, 0
	for _, finalizeErr := range errs {
		switch {
		case finalizeErr == nil:
			minted++
		case pkgerrors.HasCode(finalizeErr, pkgerrors.CodeSoldOut):
			soldOut++
		default:
			t.Fatalf("unexpected finalize error: %v", finalizeErr)
		}
	}
	assert.Equal(t, 1, minted)
	assert.Equal(t, 1, soldOut)

	statuses := map[enums.OrderStatus]int{}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		found, err := f.repo.FindByID(ctx, id)
		require.NoError(t, err)
		statuses[found.Status]++
	}
	assert.Equal(t, 1, statuses[enums.OrderStatusMinted])
	assert.Equal(t, 1, statuses[enums.OrderStatusFailed])
	assert.Len(t, f.settler.inputs, 1)
}

func TestFinalizeRequiresPaidStatus(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	order, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, order.ID, order.UserID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 0, f.ledger.calls)
}

func TestFinalizeScopedToOwner(t *testing.T) {
	f := setupOrderService(t)
	paid := createPaidOrder(t, f)

	_, err := f.svc.Finalize(context.Background(), paid.ID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestFinalizeBlockedByConcurrentClaim(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	key := f.claims.ClaimKey("finalize", paid.ID.String())
	claimed, err := f.claims.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.Finalize(ctx, paid.ID, paid.UserID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 0, f.ledger.calls)
}

func TestFinalizeMarksOrderFailedOnTerminalLedgerError(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	f.ledger.err = pkgerrors.New(pkgerrors.CodeSoldOut, "mint would exceed supply cap")

	_, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSoldOut))
	assert.Equal(t, 1, f.ledger.calls)

	found, err := f.repo.FindByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, found.Status)
	require.NotNil(t, found.FailureReason)
	assert.Equal(t, string(pkgerrors.CodeSoldOut), *found.FailureReason)
}

func TestFinalizeRetriesTransientLedgerErrors(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	f.ledger.err = pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")
	f.ledger.failFor = 2

	final, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusMinted, final.Status)
	assert.Equal(t, 3, f.ledger.calls)
}

func TestFinalizeDefersSettlementOnBookkeepingFailure(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	f.settler.err = pkgerrors.New(pkgerrors.CodeDependency, "bookkeeping store down")

	final, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusMinted, final.Status)
	assert.False(t, final.Settled)

	// The retry job finishes the books once the dependency recovers.
	f.settler.err = nil
	settled, err := f.svc.RetrySettlements(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	found, err := f.repo.FindByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, found.Settled)
	assert.Equal(t, 1, f.ledger.calls)
}

func TestFeedFailureDoesNotBlockSettlement(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()
	paid := createPaidOrder(t, f)

	f.feed.err = pkgerrors.New(pkgerrors.CodeDependency, "redis down")

	final, err := f.svc.Finalize(ctx, paid.ID, paid.UserID)
	require.NoError(t, err)
	assert.True(t, final.Settled)
	assert.Len(t, f.settler.inputs, 1)
}

func TestExpireStale(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	order, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	fresh, _, err := f.svc.Create(ctx, CreateOrderInput{UserID: uuid.New(), FighterID: 7, Quantity: 1})
	require.NoError(t, err)

	expired, err := f.svc.ExpireStale(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	found, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, found.Status)

	kept, err := f.repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, kept.Status)
}

func TestSweepPaidFinalizesAbandonedOrders(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	abandoned := createPaidOrder(t, f)
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", abandoned.ID).
		Update("updated_at", time.Now().Add(-2*time.Hour)).Error)

	recent := createPaidOrder(t, f)

	minted, err := f.svc.SweepPaid(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, minted)

	swept, err := f.repo.FindByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusMinted, swept.Status)
	assert.True(t, swept.Settled)

	untouched, err := f.repo.FindByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, untouched.Status)
}

func TestSweepPaidSkipsOrdersThatFailToMint(t *testing.T) {
	f := setupOrderService(t)
	ctx := context.Background()

	order := createPaidOrder(t, f)
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("updated_at", time.Now().Add(-2*time.Hour)).Error)

	f.ledger.err = pkgerrors.New(pkgerrors.CodeSoldOut, "supply exhausted")

	minted, err := f.svc.SweepPaid(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, minted)

	found, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, found.Status)
}

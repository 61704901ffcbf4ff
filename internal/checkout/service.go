package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/bcolabs/fightcards-backend/internal/orders"
	"github.com/bcolabs/fightcards-backend/internal/pricing"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
)

type orderCreator interface {
	Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, *pricing.Quote, error)
}

type sessionRecorder interface {
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

// Service starts hosted-payment checkouts for fighter card purchases.
type Service interface {
	Start(ctx context.Context, input StartInput) (*StartResult, error)
}

// StartInput captures what a new checkout requires.
type StartInput struct {
	UserID    uuid.UUID
	FighterID int64
	Quantity  int
}

// StartResult is returned to the client to redirect into the hosted payment
// page.
type StartResult struct {
	Order       *models.Order
	Quote       *pricing.Quote
	SessionID   string
	CheckoutURL string
}

// Params wires the checkout service dependencies.
type Params struct {
	Orders     orderCreator
	OrdersRepo sessionRecorder
	Stripe     StripeCheckoutClient
	SuccessURL string
	CancelURL  string
}

type service struct {
	orders     orderCreator
	ordersRepo sessionRecorder
	stripe     StripeCheckoutClient
	successURL string
	cancelURL  string
}

// NewService builds the checkout service.
func NewService(p Params) (Service, error) {
	if p.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if p.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if p.SuccessURL == "" || p.CancelURL == "" {
		return nil, fmt.Errorf("success and cancel urls required")
	}
	return &service{
		orders:     p.Orders,
		ordersRepo: p.OrdersRepo,
		stripe:     p.Stripe,
		successURL: p.SuccessURL,
		cancelURL:  p.CancelURL,
	}, nil
}

// Start creates the order first and only then the payment session, so every
// inbound payment event can resolve to a persisted order.
func (s *service) Start(ctx context.Context, input StartInput) (*StartResult, error) {
	order, quote, err := s.orders.Create(ctx, orders.CreateOrderInput{
		UserID:    input.UserID,
		FighterID: input.FighterID,
		Quantity:  input.Quantity,
	})
	if err != nil {
		return nil, err
	}

	params := s.sessionParams(order, quote)
	session, err := s.stripe.NewSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating checkout session")
	}

	if err := s.ordersRepo.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
		return nil, err
	}
	return &StartResult{
		Order:       order,
		Quote:       quote,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

func (s *service) sessionParams(order *models.Order, quote *pricing.Quote) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, 3)
	for _, item := range quote.LineItems() {
		if item.AmountCents == 0 {
			continue
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(item.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Label),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(order.ID.String()),
		LineItems:         lineItems,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id": order.ID.String(),
				"user_id":  order.UserID.String(),
			},
		},
	}
	params.AddMetadata("order_id", order.ID.String())
	params.AddMetadata("user_id", order.UserID.String())
	return params
}

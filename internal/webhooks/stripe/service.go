package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/metrics"
)

type paymentNotifier interface {
	OnPaymentConfirmed(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	OnPaymentFailed(ctx context.Context, orderID uuid.UUID, reason string) error
}

// ServiceParams wires the stripe webhook service dependencies.
type ServiceParams struct {
	Orders  paymentNotifier
	Metrics *metrics.MintMetrics
}

// Service translates Stripe events into order transitions.
type Service struct {
	orders  paymentNotifier
	metrics *metrics.MintMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders notifier required")
	}
	return &Service{
		orders:  params.Orders,
		metrics: params.Metrics,
	}, nil
}

// HandleEvent processes one verified Stripe event. Events that carry no
// order reference are rejected; unrecognized event types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	s.metrics.IncWebhookEvent(string(event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.confirmFromSession(ctx, &session)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		orderID, err := orderIDFromMetadata(intent.Metadata)
		if err != nil {
			return err
		}
		return s.orders.OnPaymentConfirmed(ctx, orderID, intent.ID)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		orderID, err := orderIDFromMetadata(intent.Metadata)
		if err != nil {
			return err
		}
		return s.orders.OnPaymentFailed(ctx, orderID, failureReason(&intent))
	default:
		return nil
	}
}

func (s *Service) confirmFromSession(ctx context.Context, session *stripe.CheckoutSession) error {
	orderID, err := orderIDFromSession(session)
	if err != nil {
		return err
	}
	paymentRef := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentRef = session.PaymentIntent.ID
	}
	return s.orders.OnPaymentConfirmed(ctx, orderID, paymentRef)
}

func orderIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, error) {
	if session == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	raw := session.ClientReferenceID
	if raw == "" {
		raw = session.Metadata["order_id"]
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session carries no order reference")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}
	return orderID, nil
}

func orderIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := metadata["order_id"]
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent carries no order reference")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}
	return orderID, nil
}

func failureReason(intent *stripe.PaymentIntent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return "payment failed"
}

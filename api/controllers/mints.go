package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bcolabs/fightcards-backend/api/middleware"
	"github.com/bcolabs/fightcards-backend/api/responses"
	"github.com/bcolabs/fightcards-backend/api/validators"
	"github.com/bcolabs/fightcards-backend/internal/orders"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

// MintQuote prices a prospective mint without creating an order.
func MintQuote(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		FighterID int64 `json:"fighter_id" validate:"required,gt=0"`
		Quantity  int   `json:"quantity" validate:"required,gt=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, fighter, err := svc.Quote(r.Context(), body.FighterID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"fighter":    fighter,
			"quote":      quote,
			"line_items": quote.LineItems(),
		})
	}
}

// MintFinalize settles a paid order: the backend mints on the ledger and books
// the result. Safe to call again after a transient failure.
func MintFinalize(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		OrderID uuid.UUID `json:"order_id" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		order, err := svc.Finalize(r.Context(), body.OrderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

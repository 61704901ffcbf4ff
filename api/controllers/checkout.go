package controllers

import (
	"net/http"

	"github.com/bcolabs/fightcards-backend/api/middleware"
	"github.com/bcolabs/fightcards-backend/api/responses"
	"github.com/bcolabs/fightcards-backend/api/validators"
	"github.com/bcolabs/fightcards-backend/internal/checkout"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

// CheckoutStart creates an order and opens a hosted payment session for it.
func CheckoutStart(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		FighterID int64 `json:"fighter_id" validate:"required,gt=0"`
		Quantity  int   `json:"quantity" validate:"required,gt=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Start(r.Context(), checkout.StartInput{
			UserID:    middleware.UserIDFromContext(r.Context()),
			FighterID: body.FighterID,
			Quantity:  body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"order":        result.Order,
			"quote":        result.Quote,
			"session_id":   result.SessionID,
			"checkout_url": result.CheckoutURL,
		})
	}
}

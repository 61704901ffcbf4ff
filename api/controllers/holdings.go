package controllers

import (
	"net/http"

	"github.com/bcolabs/fightcards-backend/api/middleware"
	"github.com/bcolabs/fightcards-backend/api/responses"
	"github.com/bcolabs/fightcards-backend/internal/holdings"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

// HoldingsList returns the caller's per-fighter positions.
func HoldingsList(svc holdings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holdings service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		list, err := svc.ListHoldings(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ReceiptsList returns the caller's purchase receipts.
func ReceiptsList(svc holdings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holdings service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		list, err := svc.ListReceipts(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ReceiptDetail returns the receipt for one of the caller's orders.
func ReceiptDetail(svc holdings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holdings service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		receipt, err := svc.GetReceipt(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}

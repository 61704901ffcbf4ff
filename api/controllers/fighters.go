package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bcolabs/fightcards-backend/api/responses"
	"github.com/bcolabs/fightcards-backend/api/validators"
	"github.com/bcolabs/fightcards-backend/internal/fighters"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

// FightersList returns the sellable catalog. Pass ?all=1 to include inactive
// fighters.
func FightersList(svc fighters.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fighter service unavailable"))
			return
		}

		activeOnly := strings.TrimSpace(r.URL.Query().Get("all")) == ""
		list, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// FighterDetail returns one fighter together with its current supply state.
func FighterDetail(svc fighters.Service, supplySvc supply.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fighter service unavailable"))
			return
		}

		fighterID, err := parseFighterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fighter, err := svc.Get(r.Context(), fighterID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"fighter": fighter}
		if supplySvc != nil {
			record, err := supplySvc.Supply(r.Context(), fighterID)
			if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if record != nil {
				payload["supply"] = record
			}
		}
		responses.WriteSuccess(w, payload)
	}
}

// AdminFighterCreate registers a new catalog entry.
func AdminFighterCreate(svc fighters.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		ID             int64  `json:"id" validate:"required,gt=0"`
		Name           string `json:"name" validate:"required,min=2,max=128"`
		Division       string `json:"division" validate:"required,min=2,max=64"`
		Record         string `json:"record" validate:"max=32"`
		BasePriceCents int64  `json:"base_price_cents" validate:"required,gt=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fighter service unavailable"))
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fighter, err := svc.Create(r.Context(), fighters.CreateFighterInput{
			ID:             body.ID,
			Name:           body.Name,
			Division:       body.Division,
			Record:         body.Record,
			BasePriceCents: body.BasePriceCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fighter)
	}
}

// AdminFighterSetActive toggles whether a fighter is sellable.
func AdminFighterSetActive(svc fighters.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		Active *bool `json:"active" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fighter service unavailable"))
			return
		}

		fighterID, err := parseFighterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetActive(r.Context(), fighterID, *body.Active); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": fighterID, "active": *body.Active})
	}
}

func parseFighterID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "fighterId"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "fighter id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "fighter id must be a positive integer")
	}
	return id, nil
}

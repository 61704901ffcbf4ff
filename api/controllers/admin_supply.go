package controllers

import (
	"net/http"

	"github.com/bcolabs/fightcards-backend/api/responses"
	"github.com/bcolabs/fightcards-backend/api/validators"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

// AdminRecordAttendance submits a fight-night attendance figure, deriving the
// supply cap for the fighter.
func AdminRecordAttendance(svc supply.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		Attendance int64 `json:"attendance" validate:"required,gt=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supply service unavailable"))
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

		record, err := svc.RecordAttendance(r.Context(), fighterID, body.Attendance)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// AdminIncreaseCap raises a fighter's supply cap beyond the attendance-derived
// value.
func AdminIncreaseCap(svc supply.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		MaxSupply int64 `json:"max_supply" validate:"required,gt=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supply service unavailable"))
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

		record, err := svc.IncreaseMaxSupply(r.Context(), fighterID, body.MaxSupply)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// AdminSupplyDetail reads the supply record for one fighter.
func AdminSupplyDetail(svc supply.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supply service unavailable"))
			return
		}

		fighterID, err := parseFighterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Supply(r.Context(), fighterID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// AdminRotateSignerKey swaps the trusted voucher verification key.
func AdminRotateSignerKey(svc supply.Service, logg *logger.Logger) http.HandlerFunc {
	type request struct {
		PublicKeyHex string `json:"public_key_hex" validate:"required,len=66"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supply service unavailable"))
			return
		}

		var body request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RotateSignerKey(r.Context(), body.PublicKeyHex); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		trusted, err := svc.TrustedKeyHex(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"trusted_key": trusted})
	}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/bcolabs/fightcards-backend/api/responses"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
	"github.com/bcolabs/fightcards-backend/pkg/types"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, types.HealthStatus{Status: "live"})
	}
}

// HealthReady reports ready only when both backing stores answer.
func HealthReady(database, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database != nil {
			if err := database.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, types.HealthStatus{Status: "ready"})
	}
}

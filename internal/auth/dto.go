package auth

import (
	"github.com/google/uuid"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
)

// RegisterRequest captures a new account signup.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=64"`
}

// LoginRequest captures a login attempt.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserSummary is the API-facing shape of an account.
type UserSummary struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email"`
	DisplayName   string        `json:"display_name"`
	IsAdmin       bool          `json:"is_admin"`
	FanValueCents int64         `json:"fan_value_cents"`
	FanTier       enums.FanTier `json:"fan_tier"`
}

// SessionResponse pairs a fresh access token with its account.
type SessionResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserSummary `json:"user"`
}

// FromModel converts a stored user into its API shape.
func FromModel(user *models.User) UserSummary {
	return UserSummary{
		ID:            user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		IsAdmin:       user.IsAdmin,
		FanValueCents: user.FanValueCents,
		FanTier:       user.FanTier,
	}
}

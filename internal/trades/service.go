package trades

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bcolabs/fightcards-backend/pkg/enums"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/redis"
)

const feedName = "trades"

// maskLen is how many digest characters the public alias keeps.
const maskLen = 6

// TradeEvent is one public feed entry. The user alias is a stable one-way
// mask; real identifiers never reach the feed.
type TradeEvent struct {
	Type             enums.TradeEventType `json:"type"`
	FighterID        int64                `json:"fighter_id"`
	FighterName      string               `json:"fighter_name"`
	Quantity         int                  `json:"quantity"`
	TotalCents       int64                `json:"total_cents"`
	UserAlias        string               `json:"user_alias"`
	ResultingFanTier enums.FanTier        `json:"resulting_fan_tier"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// Service publishes and reads the bounded public trade feed.
type Service interface {
	PublishMint(ctx context.Context, input PublishMintInput) error
	Recent(ctx context.Context, limit int) ([]TradeEvent, error)
}

// PublishMintInput captures the data a mint feed entry requires.
type PublishMintInput struct {
	UserID           uuid.UUID
	FighterID        int64
	FighterName      string
	Quantity         int
	TotalCents       int64
	ResultingFanTier enums.FanTier
	OccurredAt       time.Time
}

type service struct {
	feed     redis.FeedStore
	capacity int64
	now      func() time.Time
}

// NewService wires the trade feed service.
func NewService(feed redis.FeedStore, capacity int) (Service, error) {
	if feed == nil {
		return nil, fmt.Errorf("feed store required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("feed capacity must be positive")
	}
	return &service{feed: feed, capacity: int64(capacity), now: time.Now}, nil
}

func (s *service) PublishMint(ctx context.Context, input PublishMintInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	event := TradeEvent{
		Type:             enums.TradeEventTypeMint,
		FighterID:        input.FighterID,
		FighterName:      input.FighterName,
		Quantity:         input.Quantity,
		TotalCents:       input.TotalCents,
		UserAlias:        MaskUser(input.UserID),
		ResultingFanTier: input.ResultingFanTier,
		OccurredAt:       occurredAt.UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}
	return s.feed.PushCapped(ctx, s.feed.FeedKey(feedName), s.capacity, payload)
}

func (s *service) Recent(ctx context.Context, limit int) ([]TradeEvent, error) {
	if limit <= 0 || int64(limit) > s.capacity {
		limit = int(s.capacity)
	}
	raw, err := s.feed.Range(ctx, s.feed.FeedKey(feedName), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	events := make([]TradeEvent, 0, len(raw))
	for _, entry := range raw {
		var event TradeEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			// Skip entries written by incompatible older builds.
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// MaskUser derives the stable public alias for a user.
func MaskUser(userID uuid.UUID) string {
	digest := sha256.Sum256(userID[:])
	return "u_" + hex.EncodeToString(digest[:])[:maskLen]
}

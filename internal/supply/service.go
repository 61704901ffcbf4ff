package supply

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/internal/voucher"
	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the supply ledger: the single authority over caps, nonces and
// minted units.
type Service interface {
	VerifyAndMint(ctx context.Context, v voucher.Voucher, signature []byte) (*MintResult, error)
	RecordAttendance(ctx context.Context, fighterID, attendance int64) (*models.SupplyRecord, error)
	IncreaseMaxSupply(ctx context.Context, fighterID, newCap int64) (*models.SupplyRecord, error)
	Supply(ctx context.Context, fighterID int64) (*models.SupplyRecord, error)
	OwnerOf(ctx context.Context, unitRef uuid.UUID) (uuid.UUID, error)
	BalanceOf(ctx context.Context, ownerID uuid.UUID, fighterID int64) (int64, error)
	RotateSignerKey(ctx context.Context, pubKeyHex string) error
	TrustedKeyHex(ctx context.Context) (string, error)
}

// MintResult reports what a consumed voucher produced.
type MintResult struct {
	MintRef  string
	UnitRefs []uuid.UUID
}

// Params wires the supply service dependencies.
type Params struct {
	Tx   txRunner
	Repo Repository
	// TrustedKey is the boot verification key. A rotated key persisted via
	// RotateSignerKey takes precedence over it.
	TrustedKey []byte
	Metrics    *metrics.MintMetrics
	Now        func() time.Time
}

type service struct {
	tx      txRunner
	repo    Repository
	metrics *metrics.MintMetrics
	now     func() time.Time
	seedKey []byte
}

// NewService builds the supply ledger service.
func NewService(p Params) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("supply repository required")
	}
	if len(p.TrustedKey) == 0 {
		return nil, fmt.Errorf("trusted signer key required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:      p.Tx,
		repo:    p.Repo,
		metrics: p.Metrics,
		now:     now,
		seedKey: p.TrustedKey,
	}, nil
}

// VerifyAndMint consumes a signed voucher. Checks run in a fixed order:
// signature, expiry, nonce, cap. The nonce insert and the cap increment share
// one transaction so a failed mint never burns a nonce.
func (s *service) VerifyAndMint(ctx context.Context, v voucher.Voucher, signature []byte) (*MintResult, error) {
	if v.Recipient == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher recipient required")
	}
	if v.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher quantity must be at least 1")
	}

	key, err := s.currentKey(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := voucher.Verify(key, v, signature)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeBadSignature, err, "voucher digest failed")
	}
	if !ok {
		s.metrics.IncMintFailure(string(pkgerrors.CodeBadSignature))
		return nil, pkgerrors.New(pkgerrors.CodeBadSignature, "voucher signature does not verify against trusted key")
	}
	if s.now().After(v.ExpiresAt) {
		s.metrics.IncMintFailure(string(pkgerrors.CodeVoucherExpired))
		return nil, pkgerrors.New(pkgerrors.CodeVoucherExpired, "voucher deadline has passed")
	}

	mintRef := newMintRef()
	unitRefs := make([]uuid.UUID, 0, v.Quantity)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		nonce := &models.SpentNonce{Nonce: v.Nonce, FighterID: v.FighterID}
		if err := repo.InsertSpentNonce(ctx, nonce); err != nil {
			if db.IsUniqueViolation(err, "spent_nonces") {
				return pkgerrors.New(pkgerrors.CodeNonceReused, "voucher nonce already spent")
			}
			return err
		}

		if err := s.ensureRecord(ctx, repo, v.FighterID); err != nil {
			return err
		}

		minted, err := repo.IncrementMinted(ctx, v.FighterID, int64(v.Quantity))
		if err != nil {
			return err
		}
		if !minted {
			return pkgerrors.New(pkgerrors.CodeSoldOut, "mint would exceed supply cap").
				WithDetails(map[string]any{"fighter_id": v.FighterID, "requested": v.Quantity})
		}

		units := make([]models.MintedUnit, 0, v.Quantity)
		for i := 0; i < v.Quantity; i++ {
			ref := uuid.New()
			unitRefs = append(unitRefs, ref)
			units = append(units, models.MintedUnit{
				UnitRef:     ref,
				MintRef:     mintRef,
				FighterID:   v.FighterID,
				OwnerUserID: v.Recipient,
			})
		}
		return repo.CreateUnits(ctx, units)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncMintFailure(string(typed.Code()))
		}
		return nil, err
	}

	s.metrics.IncMinted(fmt.Sprintf("%d", v.FighterID))
	return &MintResult{MintRef: mintRef, UnitRefs: unitRefs}, nil
}

// RecordAttendance ingests a verified attendance figure and lifts the cap to
// attendance/2 when that beats the current cap. Attendance never decreases.
func (s *service) RecordAttendance(ctx context.Context, fighterID, attendance int64) (*models.SupplyRecord, error) {
	if fighterID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id required")
	}
	if attendance <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attendance must be positive")
	}

	var record *models.SupplyRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindRecord(ctx, fighterID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		derivedCap := attendance / 2
		if existing == nil {
			record = &models.SupplyRecord{
				FighterID:          fighterID,
				RecordedAttendance: attendance,
				MaxSupply:          derivedCap,
			}
			if err := repo.InsertRecord(ctx, record); err != nil {
				if db.IsUniqueViolation(err, "supply_records") {
					return pkgerrors.New(pkgerrors.CodeConflict, "concurrent supply record creation")
				}
				return err
			}
			return nil
		}

		if attendance < existing.RecordedAttendance {
			return pkgerrors.New(pkgerrors.CodeAttendanceRegression, "attendance below recorded value").
				WithDetails(map[string]any{
					"fighter_id": fighterID,
					"recorded":   existing.RecordedAttendance,
					"submitted":  attendance,
				})
		}

		newCap := existing.MaxSupply
		if derivedCap > newCap {
			newCap = derivedCap
		}
		updated, err := repo.UpdateSupply(ctx, fighterID, attendance, newCap)
		if err != nil {
			return err
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "supply record changed concurrently")
		}

		existing.RecordedAttendance = attendance
		existing.MaxSupply = newCap
		record = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// IncreaseMaxSupply lets an operator lift a cap past the attendance-derived
// value. Lowering is never allowed; re-submitting the current cap is a no-op.
func (s *service) IncreaseMaxSupply(ctx context.Context, fighterID, newCap int64) (*models.SupplyRecord, error) {
	if fighterID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id required")
	}
	if newCap <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new cap must be positive")
	}

	var record *models.SupplyRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindRecord(ctx, fighterID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no supply record for fighter")
		}
		if err != nil {
			return err
		}
		if newCap < existing.MaxSupply {
			return pkgerrors.New(pkgerrors.CodeCapRegression, "cap cannot drop below current value").
				WithDetails(map[string]any{
					"fighter_id": fighterID,
					"current":    existing.MaxSupply,
					"submitted":  newCap,
				})
		}
		if newCap == existing.MaxSupply {
			// Idempotent re-submission of the current cap.
			record = existing
			return nil
		}

		raised, err := repo.RaiseCap(ctx, fighterID, newCap)
		if err != nil {
			return err
		}
		if !raised {
			return pkgerrors.New(pkgerrors.CodeConflict, "supply record changed concurrently")
		}

		existing.MaxSupply = newCap
		record = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) Supply(ctx context.Context, fighterID int64) (*models.SupplyRecord, error) {
	if fighterID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id required")
	}
	record, err := s.repo.FindRecord(ctx, fighterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no supply record for fighter")
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) OwnerOf(ctx context.Context, unitRef uuid.UUID) (uuid.UUID, error) {
	if unitRef == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unit ref required")
	}
	unit, err := s.repo.FindUnit(ctx, unitRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
	}
	if err != nil {
		return uuid.Nil, err
	}
	return unit.OwnerUserID, nil
}

func (s *service) BalanceOf(ctx context.Context, ownerID uuid.UUID, fighterID int64) (int64, error) {
	if ownerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	return s.repo.CountUnitsByOwner(ctx, ownerID, fighterID)
}

// RotateSignerKey persists a new trusted voucher key. Verification reads the
// stored key, so every instance sharing the database rejects signatures from
// the retired key from this point on, including across restarts.
func (s *service) RotateSignerKey(ctx context.Context, pubKeyHex string) error {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "signer key must be hex")
	}
	if len(raw) != 33 {
		return pkgerrors.New(pkgerrors.CodeValidation, "signer key must be a compressed public key")
	}
	return s.repo.SaveSignerKey(ctx, hex.EncodeToString(raw))
}

func (s *service) TrustedKeyHex(ctx context.Context) (string, error) {
	key, err := s.currentKey(ctx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// currentKey resolves the trusted verification key: the persisted rotated key
// when one exists, otherwise the configured boot key.
func (s *service) currentKey(ctx context.Context) ([]byte, error) {
	stored, err := s.repo.FindSignerKey(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.seedKey, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(stored.PublicKeyHex)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored signer key is not hex")
	}
	return raw, nil
}

// ensureRecord creates a zero supply record on first mint so uncapped
// fighters still accumulate a minted count.
func (s *service) ensureRecord(ctx context.Context, repo Repository, fighterID int64) error {
	_, err := repo.FindRecord(ctx, fighterID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	insertErr := repo.InsertRecord(ctx, &models.SupplyRecord{FighterID: fighterID})
	if insertErr != nil && !db.IsUniqueViolation(insertErr, "supply_records") {
		return insertErr
	}
	return nil
}

func newMintRef() string {
	return "mint_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

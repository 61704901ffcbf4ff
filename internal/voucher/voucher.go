package voucher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// domainTag binds signatures to this scheme so a voucher digest can never
// collide with any other signed payload in the system.
const domainTag = "fightcards/mint-auth/v1"

// NonceBytes is the width of the replay-protection nonce.
const NonceBytes = 16

// Voucher is a time-boxed, single-use mint authorization. It is never
// persisted; only its nonce survives (as spent) once the ledger consumes it.
type Voucher struct {
	Recipient      uuid.UUID
	FighterID      int64
	Quantity       int
	UnitPriceCents int64
	ExpiresAt      time.Time
	Nonce          string
}

// NewNonce returns a fresh random nonce, hex encoded.
func NewNonce() (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Digest returns the canonical SHA-256 digest the signature covers. The
// encoding is fixed-width big endian so it stays byte-stable across
// versions; changing it invalidates every outstanding voucher.
func (v Voucher) Digest() ([32]byte, error) {
	nonce, err := hex.DecodeString(v.Nonce)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != NonceBytes {
		return [32]byte{}, fmt.Errorf("nonce must be %d bytes, got %d", NonceBytes, len(nonce))
	}

	h := sha256.New()
	h.Write([]byte(domainTag))
	h.Write(v.Recipient[:])

	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(v.FighterID))
	h.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(v.Quantity))
	h.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(v.UnitPriceCents))
	h.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(v.ExpiresAt.Unix()))
	h.Write(scratch[:])

	h.Write(nonce)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

package voucher

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
)

// Signer issues signed mint vouchers with a fixed validity window.
type Signer struct {
	priv *btcec.PrivateKey
	ttl  time.Duration
	now  func() time.Time
}

// NewSigner builds a signer from a hex-encoded secp256k1 private key.
func NewSigner(keyHex string, ttl time.Duration) (*Signer, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode signer key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("signer key must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(raw))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("voucher ttl must be positive")
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Signer{priv: priv, ttl: ttl, now: time.Now}, nil
}

// NewEphemeralSigner generates a throwaway key. Used in sandbox mode where
// vouchers only need to round-trip against the in-process ledger.
func NewEphemeralSigner(ttl time.Duration) (*Signer, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("voucher ttl must be positive")
	}
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &Signer{priv: priv, ttl: ttl, now: time.Now}, nil
}

// PublicKey returns the compressed public key the ledger should trust.
func (s *Signer) PublicKey() []byte {
	return s.priv.PubKey().SerializeCompressed()
}

// PublicKeyHex returns the compressed public key in hex.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.PublicKey())
}

// Issue creates and signs a voucher for the given mint. The returned
// signature is DER encoded.
func (s *Signer) Issue(recipient uuid.UUID, fighterID int64, quantity int, unitPriceCents int64) (Voucher, []byte, error) {
	if quantity < 1 {
		return Voucher{}, nil, fmt.Errorf("quantity must be at least 1")
	}
	nonce, err := NewNonce()
	if err != nil {
		return Voucher{}, nil, err
	}
	v := Voucher{
		Recipient:      recipient,
		FighterID:      fighterID,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		ExpiresAt:      s.now().Add(s.ttl),
		Nonce:          nonce,
	}
	digest, err := v.Digest()
	if err != nil {
		return Voucher{}, nil, err
	}
	sig := ecdsa.Sign(s.priv, digest[:])
	return v, sig.Serialize(), nil
}

// Verify checks a DER signature over the voucher digest against a compressed
// public key. It does not check expiry; that is the ledger's job against its
// own clock.
func Verify(pubKey []byte, v Voucher, sig []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	digest, err := v.Digest()
	if err != nil {
		return false, err
	}
	return parsed.Verify(digest[:], pub), nil
}

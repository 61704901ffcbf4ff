package voucher

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	signer, err := NewEphemeralSigner(10 * time.Minute)
	require.NoError(t, err)

	recipient := uuid.New()
	v, sig, err := signer.Issue(recipient, 7, 2, 500)
	require.NoError(t, err)

	assert.Equal(t, recipient, v.Recipient)
	assert.Equal(t, int64(7), v.FighterID)
	assert.Equal(t, 2, v.Quantity)
	assert.Equal(t, int64(500), v.UnitPriceCents)
	assert.Len(t, v.Nonce, NonceBytes*2)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), v.ExpiresAt, 5*time.Second)

	ok, err := Verify(signer.PublicKey(), v, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	signer, err := NewEphemeralSigner(10 * time.Minute)
	require.NoError(t, err)

	v, sig, err := signer.Issue(uuid.New(), 7, 1, 500)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(v Voucher) Voucher
	}{
		{"recipient", func(v Voucher) Voucher { v.Recipient = uuid.New(); return v }},
		{"fighter", func(v Voucher) Voucher { v.FighterID = 8; return v }},
		{"quantity", func(v Voucher) Voucher { v.Quantity = 100; return v }},
		{"price", func(v Voucher) Voucher { v.UnitPriceCents = 1; return v }},
		{"deadline", func(v Voucher) Voucher { v.ExpiresAt = v.ExpiresAt.Add(time.Hour); return v }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := Verify(signer.PublicKey(), tc.mutate(v), sig)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, err := NewEphemeralSigner(time.Minute)
	require.NoError(t, err)
	other, err := NewEphemeralSigner(time.Minute)
	require.NoError(t, err)

	v, sig, err := signer.Issue(uuid.New(), 1, 1, 500)
	require.NoError(t, err)

	ok, err := Verify(other.PublicKey(), v, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMalformedSignature(t *testing.T) {
	signer, err := NewEphemeralSigner(time.Minute)
	require.NoError(t, err)
	v, _, err := signer.Issue(uuid.New(), 1, 1, 500)
	require.NoError(t, err)

	ok, err := Verify(signer.PublicKey(), v, []byte("garbage"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner("not-hex", time.Minute)
	assert.Error(t, err)

	_, err = NewSigner("abcd", time.Minute)
	assert.Error(t, err)

	_, err = NewSigner(strings.Repeat("11", 32), 0)
	assert.Error(t, err)

	signer, err := NewSigner(strings.Repeat("11", 32), time.Minute)
	require.NoError(t, err)
	assert.Len(t, signer.PublicKey(), 33)
}

func TestNonceUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		n, err := NewNonce()
		require.NoError(t, err)
		assert.False(t, seen[n])
		seen[n] = true
	}
}

func TestDigestRejectsBadNonce(t *testing.T) {
	v := Voucher{Nonce: "zz"}
	_, err := v.Digest()
	assert.Error(t, err)

	v.Nonce = "ab"
	_, err = v.Digest()
	assert.Error(t, err)
}

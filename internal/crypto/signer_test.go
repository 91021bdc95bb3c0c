package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSigner_SignAndVerify(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	signer, err := NewExportSigner(secret)
	require.NoError(t, err)
	require.True(t, signer.Enabled())

	data := []byte("user_id,amount,flagged,risk_score,reasons\n")
	sig := signer.Sign(data)

	assert.Len(t, sig, 64)
	assert.True(t, signer.Verify(data, sig))
	assert.False(t, signer.Verify([]byte("tampered"), sig))
	assert.Equal(t, sig, signer.Sign(data), "signature is deterministic")
}

func TestNewExportSigner_Disabled(t *testing.T) {
	signer, err := NewExportSigner("")
	require.NoError(t, err)

	assert.False(t, signer.Enabled())
	assert.Empty(t, signer.Sign([]byte("x")))
	assert.False(t, signer.Verify([]byte("x"), ""))
}

func TestNewExportSigner_InvalidSecret(t *testing.T) {
	_, err := NewExportSigner("%%%not-base64")
	assert.Error(t, err)

	_, err = NewExportSigner(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Digest(nil))
}

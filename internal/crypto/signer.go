package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ExportSigner signs CSV exports with HMAC-SHA256 so a downloaded report can
// be checked against the copy the service produced
type ExportSigner struct {
	secret []byte
}

// NewExportSigner decodes a base64 secret. An empty secret yields a nil
// signer, which signs nothing.
func NewExportSigner(secretBase64 string) (*ExportSigner, error) {
	if secretBase64 == "" {
		return nil, nil
	}

	secret, err := base64.StdEncoding.DecodeString(secretBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode export HMAC secret: %w", err)
	}
	if len(secret) < 16 {
		return nil, errors.New("export HMAC secret must be at least 16 bytes")
	}

	return &ExportSigner{secret: secret}, nil
}

// Enabled reports whether exports are signed
func (s *ExportSigner) Enabled() bool {
	return s != nil
}

// Sign returns the hex HMAC of data, or "" when signing is disabled
func (s *ExportSigner) Sign(data []byte) string {
	if s == nil {
		return ""
	}
	h := hmac.New(sha256.New, s.secret)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign
func (s *ExportSigner) Verify(data []byte, signature string) bool {
	if s == nil {
		return false
	}
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}

// Digest creates a SHA-256 fingerprint used as the export ETag
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HMACVerifier authenticates Meta-style webhook signatures: an
// "sha256=<hex>" header computed over the raw request body with the app
// secret as key.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return fmt.Errorf("missing signature header")
	}
	expectedHex := strings.TrimPrefix(signatureHeader, "sha256=")
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return fmt.Errorf("malformed signature header")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// NoopVerifier accepts every payload. Development use only.
type NoopVerifier struct{}

func (NoopVerifier) Verify([]byte, string) error { return nil }

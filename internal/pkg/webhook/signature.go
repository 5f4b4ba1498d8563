package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeaderCandidates are checked in order; the first present header
// wins and no merging happens across them.
var SignatureHeaderCandidates = []string{
	"X-Mindbody-Signature",
	"X-MB-Signature",
	"X-Signature",
	"Signature",
}

var (
	ErrMissingSignature    = errors.New("webhook: missing signature header")
	ErrMissingSignatureKey = errors.New("webhook: signature secret is not configured")
	ErrInvalidSignature    = errors.New("webhook: signature mismatch")
)

// ComputeSignature returns "sha256=" + hex(HMAC-SHA256(secret, body)).
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the presented signature against the raw request
// body under constant-time comparison.
func VerifySignature(rawBody []byte, presented, secret string) error {
	if strings.TrimSpace(presented) == "" {
		return ErrMissingSignature
	}
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSignatureKey
	}

	expected := ComputeSignature(secret, rawBody)
	if !hmac.Equal([]byte(expected), []byte(presented)) {
		return ErrInvalidSignature
	}
	return nil
}

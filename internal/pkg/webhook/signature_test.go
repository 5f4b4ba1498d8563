package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func TestComputeSignature(t *testing.T) {
	secret := "abc123"
	body := []byte(`{"x":1}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := ComputeSignature(secret, body); got != want {
		t.Fatalf("ComputeSignature = %q, want %q", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "abc123"
	body := []byte(`{"x":1}`)
	valid := ComputeSignature(secret, body)

	if err := VerifySignature(body, valid, secret); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}

	// Any mutation of the body must invalidate the signature.
	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	if err := VerifySignature(mutated, valid, secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for mutated body, got %v", err)
	}

	// Any mutation of the header value must invalidate it too.
	tampered := []byte(valid)
	tampered[len(tampered)-1] ^= 0x01
	if err := VerifySignature(body, string(tampered), secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered header, got %v", err)
	}

	if err := VerifySignature(body, "", secret); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if err := VerifySignature(body, valid, ""); !errors.Is(err, ErrMissingSignatureKey) {
		t.Fatalf("expected ErrMissingSignatureKey, got %v", err)
	}
	if err := VerifySignature(body, valid, "wrong-secret"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}
}

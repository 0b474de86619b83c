package webhooks

import (
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerify(t *testing.T) {
	secret := "secret"
	payload := []byte(`{"id":"evt_1","amount":100}`)

	sig := Sign(secret, payload)

	if !Verify(secret, payload, sig) {
		t.Error("Verify() rejected a valid signature")
	}

	if Verify(secret, []byte(`{"id":"evt_1","amount":999}`), sig) {
		t.Error("Verify() accepted a signature over a tampered payload")
	}

	if Verify("wrong-secret", payload, sig) {
		t.Error("Verify() accepted a signature under the wrong secret")
	}
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"event_id":"abc","event_type":"payment.completed"}`)

	sig := svc.Sign("whsec_test", payload)
	assert.Len(t, sig, 64, "hex-encoded SHA256 is 64 chars")
	assert.True(t, svc.Verify("whsec_test", payload, sig))
}

func TestHMACSignatureService_Deterministic(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte("payload")
	assert.Equal(t, svc.Sign("key", payload), svc.Sign("key", payload))
}

func TestHMACSignatureService_VerifyRejects(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte("payload")
	sig := svc.Sign("key", payload)

	assert.False(t, svc.Verify("other-key", payload, sig), "wrong secret")
	assert.False(t, svc.Verify("key", []byte("tampered"), sig), "tampered payload")
	assert.False(t, svc.Verify("key", payload, "deadbeef"), "bogus signature")
}

package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestHashComplianceDeterministic(t *testing.T) {
	a := HashCompliance(Compliance, []byte("hello"))
	b := HashCompliance(Compliance, []byte("hello"))
	if a != b {
		t.Fatal("HashCompliance is not deterministic")
	}
}

func TestHashComplianceAndFastDiffer(t *testing.T) {
	data := []byte("kimberlite")
	c := HashCompliance(Compliance, data)
	f := HashFast(data)
	if bytes.Equal(c[:], f[:]) {
		t.Fatal("compliance and fast hash must use distinct algorithms")
	}
}

func TestHashComplianceChained(t *testing.T) {
	var prev Digest
	h1 := HashComplianceChained(Compliance, prev, 0, []byte("a"))
	h2 := HashComplianceChained(Compliance, h1, 1, []byte("b"))
	if h1 == h2 {
		t.Fatal("chained hashes must differ across records")
	}
	if h1 != HashComplianceChained(Compliance, prev, 0, []byte("a")) {
		t.Fatal("chained hash is not deterministic")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	var key Key
	copy(key[:], bytes.Repeat([]byte{0x42}, KeySize))
	nonce := NonceFromCounter(1)
	aad := []byte("stream:1")
	plaintext := []byte("phi-payload")

	ciphertext, err := AEADSeal(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := AEADOpen(key, nonce, aad, ciphertext)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestAEADOpenRejectsTamperedCiphertext(t *testing.T) {
	var key Key
	nonce := NonceFromCounter(1)
	ciphertext, err := AEADSeal(key, nonce, nil, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	ciphertext[0] ^= 0xFF

	if _, err := AEADOpen(key, nonce, nil, ciphertext); err == nil {
		t.Fatal("expected AuthenticationFail for tampered ciphertext")
	} else if f, ok := err.(*Failure); !ok || f.Kind != FailureAuthentication {
		t.Fatalf("expected FailureAuthentication, got %v", err)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, ed25519.SeedSize)
	full := ed25519.NewKeyFromSeed(seed)

	var sk PrivateKey
	var pk PublicKey
	copy(sk[:], full)
	copy(pk[:], full[ed25519.SeedSize:])

	msg := []byte("checkpoint-42")
	sig := Sign(sk, msg)

	if err := Verify(pk, msg, sig); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := Verify(pk, []byte("tampered"), sig); err == nil {
		t.Fatal("expected signature verification to fail on tampered message")
	}
}

func TestDeriveIsDomainSeparated(t *testing.T) {
	var parent Key
	copy(parent[:], bytes.Repeat([]byte{0x07}, KeySize))

	a, err := Derive("kimberlite/phi-region/v1", parent, []byte("region-1"))
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, err := Derive("kimberlite/phi-region/v1", parent, []byte("region-2"))
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	if a == b {
		t.Fatal("keys derived for different contexts must differ")
	}
}

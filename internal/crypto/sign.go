package crypto

import "crypto/ed25519"

// SignatureSize is the width in bytes of a signature produced by Sign.
const SignatureSize = ed25519.SignatureSize

// PublicKeySize and PrivateKeySize describe the ed25519 key widths used
// for attestation. Kimberlite uses ed25519 rather than a curve requiring
// random nonces per signature, so Sign stays a pure function of its
// inputs — no RNG leaks into the signing path.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
)

// PublicKey is a 32-byte and PrivateKey a 64-byte ed25519 attestation key.
type PublicKey [PublicKeySize]byte
type PrivateKey [PrivateKeySize]byte

// Signature is a 64-byte ed25519 signature.
type Signature [SignatureSize]byte

// Sign produces an ed25519 signature over msg using sk.
func Sign(sk PrivateKey, msg []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(sk[:]), msg)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify checks that sig is a valid ed25519 signature over msg under pk.
// Returns a SignatureFail Failure rather than a bool so call sites cannot
// accidentally ignore a failed verification by discarding a return value.
func Verify(pk PublicKey, msg []byte, sig Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:]) {
		return newFailure(FailureSignature, "signature does not verify")
	}
	return nil
}

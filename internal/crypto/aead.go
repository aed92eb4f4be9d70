package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the width in bytes of an AEAD key (256 bits).
const KeySize = chacha20poly1305.KeySize

// NonceSize is the width in bytes of an AEAD nonce (96 bits). Nonces must
// never repeat under the same key; callers draw them from a monotone
// per-key counter (production) or a random source bound to the key's
// lifetime, never both within the same key.
const NonceSize = chacha20poly1305.NonceSize

// Key is a 256-bit AEAD key, typically produced by Derive.
type Key [KeySize]byte

// Nonce is a 96-bit AEAD nonce.
type Nonce [NonceSize]byte

// AEADSeal encrypts plaintext under key, authenticating aad alongside it,
// using ChaCha20-Poly1305. Returns IntegrityFail if key or nonce are the
// wrong length — callers should treat Key/Nonce as fixed-width and never
// hit this path, but the check guards against zero-valued or truncated
// inputs crossing a serialization boundary.
func AEADSeal(key Key, nonce Nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, newFailure(FailureIntegrity, err.Error())
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// AEADOpen decrypts and authenticates ciphertext produced by AEADSeal with
// the same key, nonce, and aad. Returns an AuthenticationFail Failure if
// the ciphertext or aad has been tampered with, or the key/nonce do not
// match the sealing call.
func AEADOpen(key Key, nonce Nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, newFailure(FailureIntegrity, err.Error())
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, newFailure(FailureAuthentication, "AEAD tag mismatch")
	}
	return plaintext, nil
}

// NonceFromCounter encodes a monotone 64-bit counter into a 96-bit nonce,
// zero-padded in the high bytes. Used by data-at-rest encryption sites
// that track a per-key write counter instead of drawing random nonces.
func NonceFromCounter(counter uint64) Nonce {
	var n Nonce
	for i := 0; i < 8; i++ {
		n[NonceSize-1-i] = byte(counter >> (8 * i))
	}
	return n
}

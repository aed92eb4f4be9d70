// Package crypto provides Kimberlite's pure cryptographic primitives: the
// dual-hash scheme, authenticated encryption for data at rest, digital
// signatures for attestation, and HKDF-style key derivation. Every
// function here is deterministic and side-effect-free — no clock, no
// process-global RNG. Callers that need randomness (nonces, key material)
// must supply it explicitly; internal/shell is the only caller allowed to
// draw from an actual entropy source.
package crypto

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the width in bytes of both the compliance and the fast hash.
const DigestSize = 32

// Digest is a 32-byte cryptographic digest produced by either hash family.
type Digest [DigestSize]byte

// HashPurpose is a compile-time token restricting which call sites may
// invoke which hash family. Compliance-critical sites (chain hashes, audit
// records, checkpoints, external attestations) must hold the
// Compliance token; nothing else type-checks against
// HashCompliance's signature.
type HashPurpose interface {
	hashPurpose()
}

// compliancePurpose is the sole implementation of HashPurpose accepted by
// HashCompliance. It is unexported so no other package can fabricate one
// and bypass the distinction at a compliance-critical call site.
type compliancePurpose struct{}

func (compliancePurpose) hashPurpose() {}

// Compliance is the single token that unlocks HashCompliance. Pass it
// explicitly at every compliance-critical call site; its presence in a
// diff is the reviewable signal that the call site was deliberately
// classified as compliance-critical.
var Compliance HashPurpose = compliancePurpose{}

// HashCompliance computes the compliance hash: a deterministic,
// collision-resistant 256-bit digest used for chain hashes, audit
// records, checkpoints, and external attestations. It is backed by
// SHA-256, the industry-standard digest for this purpose.
//
// The purpose token is not consulted at runtime; its only job is to make
// it a compile error to call this function without explicitly asserting
// "this is a compliance-critical site."
func HashCompliance(_ HashPurpose, data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// HashFast computes the internal hash: a deterministic, collision-resistant
// digest tuned for throughput rather than the compliance hash's specific
// algorithm pedigree. Used only on internal hot paths — content
// addressing and merkle leaves — never for chain hashes or attestations.
func HashFast(data []byte) Digest {
	sum := blake2b.Sum256(data)
	return Digest(sum)
}

// HashComplianceChained computes H(prevHash || offset || payload) as
// specified for log record chaining (spec §4.2). offset is encoded as
// 8 bytes little-endian to match the bit-exact record layout.
func HashComplianceChained(purpose HashPurpose, prevHash Digest, offset uint64, payload []byte) Digest {
	buf := make([]byte, 0, DigestSize+8+len(payload))
	buf = append(buf, prevHash[:]...)
	buf = appendUint64LE(buf, offset)
	buf = append(buf, payload...)
	return HashCompliance(purpose, buf)
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}

// Equal performs a constant-time comparison of two digests, appropriate
// for comparing MACs, signatures, and other secret-derived values.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// IsZero reports whether d is the zero digest, used as the sentinel
// prev_hash of the first record in a stream.
func (d Digest) IsZero() bool {
	var zero Digest
	return d == zero
}

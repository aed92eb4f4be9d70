package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Derive produces a child key from parentKey, domain-separated by
// purposeLabel and bound to context (e.g. a tenant or region identifier).
// Built on HKDF-SHA256: purposeLabel and context together form HKDF's
// "info" parameter, so distinct purposes or contexts never collide on the
// same parent key.
func Derive(purposeLabel string, parentKey Key, context []byte) (Key, error) {
	info := make([]byte, 0, len(purposeLabel)+1+len(context))
	info = append(info, purposeLabel...)
	info = append(info, 0x00)
	info = append(info, context...)

	reader := hkdf.New(sha256.New, parentKey[:], nil, info)

	var child Key
	if _, err := io.ReadFull(reader, child[:]); err != nil {
		return Key{}, newFailure(FailureIntegrity, "hkdf expansion failed: "+err.Error())
	}
	return child, nil
}

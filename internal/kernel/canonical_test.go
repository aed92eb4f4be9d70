package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendCanonicalStateIsOrderIndependentOfMapIteration(t *testing.T) {
	state := New()
	state, _, err := Apply(state, Command{Kind: CmdCreateStream, CreateStream: &CreateStreamCmd{
		Tenant:    1,
		Name:      "events",
		Class:     NonPHI,
		Placement: Placement{Kind: PlacementGlobal},
	}})
	require.NoError(t, err)
	state, _, err = Apply(state, Command{Kind: CmdCreateStream, CreateStream: &CreateStreamCmd{
		Tenant:    1,
		Name:      "audit",
		Class:     NonPHI,
		Placement: Placement{Kind: PlacementGlobal},
	}})
	require.NoError(t, err)

	// Run the encode repeatedly; Go's randomized map iteration would
	// surface any missing sort step as a flaky hash.
	first := appendCanonicalState(nil, state)
	for i := 0; i < 25; i++ {
		require.Equal(t, first, appendCanonicalState(nil, state))
	}
}

func TestAppendStringNormalizesToNFC(t *testing.T) {
	// "e" + combining acute accent (NFD) vs precomposed "é" (NFC) must
	// canonicalize identically.
	decomposed := "é"
	precomposed := "é"
	require.Equal(t, appendString(nil, decomposed), appendString(nil, precomposed))
}

func TestAppendValueTagsDistinguishZeroValues(t *testing.T) {
	// A zero IntValue, empty TextValue, false BoolValue, and Null must all
	// encode distinctly despite sharing "zero-like" appearances.
	encodings := [][]byte{
		appendValue(nil, IntValue(0)),
		appendValue(nil, TextValue("")),
		appendValue(nil, BoolValue(false)),
		appendValue(nil, Null{}),
	}
	for i := range encodings {
		for j := range encodings {
			if i == j {
				continue
			}
			require.NotEqual(t, encodings[i], encodings[j])
		}
	}
}

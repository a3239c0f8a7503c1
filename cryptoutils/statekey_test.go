package cryptoutils

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenState(t *testing.T) {
	key := DeriveStateKey([]byte("passphrase"), "test")

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "Snapshot", data: []byte{0x01, 0xc0}},
		{name: "Empty", data: []byte{}},
		{name: "Large", data: make([]byte, 64*1024)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := SealState(key, tc.data)
			require.NoError(t, err)
			assert.NotEqual(t, tc.data, sealed)

			opened, err := OpenState(key, sealed)
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), len(opened))
			assert.Equal(t, string(tc.data), string(opened))
		})
	}
}

func TestOpenStateFailures(t *testing.T) {
	key := DeriveStateKey([]byte("passphrase"), "test")
	sealed, err := SealState(key, []byte("snapshot"))
	require.NoError(t, err)

	wrongKey := DeriveStateKey([]byte("passphrase"), "other")
	_, err = OpenState(wrongKey, sealed)
	assert.ErrorIs(t, err, ErrStateDecryption)

	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = OpenState(key, tampered)
	assert.ErrorIs(t, err, ErrStateDecryption)

	_, err = OpenState(key, []byte("short"))
	assert.ErrorIs(t, err, ErrStateDecryption)
}

func TestDeriveStateKeyDeterministic(t *testing.T) {
	assert.Equal(t, DeriveStateKey([]byte("a"), "s"), DeriveStateKey([]byte("a"), "s"))
	assert.NotEqual(t, DeriveStateKey([]byte("a"), "s"), DeriveStateKey([]byte("b"), "s"))
}

func TestStateKeyFromHex(t *testing.T) {
	key := DeriveStateKey([]byte("passphrase"), "test")

	parsed, err := StateKeyFromHex("0x" + hex.EncodeToString(key[:]))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = StateKeyFromHex("abcd")
	assert.Error(t, err)

	_, err = StateKeyFromHex("zz")
	assert.Error(t, err)
}

func TestStateKeyShares(t *testing.T) {
	key := DeriveStateKey([]byte("passphrase"), "test")

	shares, err := SplitStateKey(key, 5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	combined, err := CombineStateKeyShares([][]byte{shares[4], shares[0], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, key, combined)

	// Below threshold produces a different key
	partial, err := CombineStateKeyShares(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, key, partial)

	_, err = SplitStateKey(key, 2, 3)
	assert.Error(t, err)
}

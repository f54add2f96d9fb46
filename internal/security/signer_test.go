package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner("shared-secret")
	body := []byte(`{"license_key":"ABCD-1234-EFGH"}`)
	ts := int64(1700000000000)

	sig := signer.Sign(body, ts)
	require.Len(t, sig, 64)

	t.Run("valid signature verifies", func(t *testing.T) {
		assert.True(t, signer.Verify(body, ts, sig))
	})

	t.Run("mutated body fails", func(t *testing.T) {
		assert.False(t, signer.Verify([]byte(`{"license_key":"XXXX-0000-YYYY"}`), ts, sig))
	})

	t.Run("shifted timestamp fails", func(t *testing.T) {
		assert.False(t, signer.Verify(body, ts+1, sig))
	})

	t.Run("different secret fails", func(t *testing.T) {
		other := NewSigner("other-secret")
		assert.False(t, other.Verify(body, ts, sig))
	})

	t.Run("reserialized body fails", func(t *testing.T) {
		// Same JSON document, different byte layout.
		reserialized := []byte(`{ "license_key": "ABCD-1234-EFGH" }`)
		assert.False(t, signer.Verify(reserialized, ts, sig))
	})
}

func TestSignerEmptyBody(t *testing.T) {
	signer := NewSigner("shared-secret")
	ts := int64(1700000000000)

	sig := signer.Sign(nil, ts)
	assert.True(t, signer.Verify(nil, ts, sig))
	assert.True(t, signer.Verify([]byte{}, ts, sig))
}

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFingerprint(t *testing.T) {
	fp, err := CollectFingerprint()
	require.NoError(t, err)

	assert.NotEmpty(t, fp.Hostname)
	assert.NotEmpty(t, fp.Username)
	assert.NotEmpty(t, fp.Platform)
	assert.NotEmpty(t, fp.Architecture)
	assert.NotEmpty(t, fp.MACAddress)
}

func TestFingerprintDigest(t *testing.T) {
	fp := &DeviceFingerprint{
		Hostname:     "testhost",
		Username:     "tester",
		Platform:     "linux",
		Architecture: "amd64",
		MACAddress:   "aa:bb:cc:dd:ee:ff",
	}

	t.Run("is stable", func(t *testing.T) {
		assert.Equal(t, fp.Digest(), fp.Digest())
	})

	t.Run("is 64 hex characters", func(t *testing.T) {
		digest := fp.Digest()
		require.Len(t, digest, 64)
		for _, c := range digest {
			assert.Contains(t, "0123456789abcdef", string(c))
		}
	})

	t.Run("changes when any signal changes", func(t *testing.T) {
		base := fp.Digest()

		variants := []DeviceFingerprint{
			{Hostname: "otherhost", Username: "tester", Platform: "linux", Architecture: "amd64", MACAddress: "aa:bb:cc:dd:ee:ff"},
			{Hostname: "testhost", Username: "other", Platform: "linux", Architecture: "amd64", MACAddress: "aa:bb:cc:dd:ee:ff"},
			{Hostname: "testhost", Username: "tester", Platform: "darwin", Architecture: "amd64", MACAddress: "aa:bb:cc:dd:ee:ff"},
			{Hostname: "testhost", Username: "tester", Platform: "linux", Architecture: "arm64", MACAddress: "aa:bb:cc:dd:ee:ff"},
			{Hostname: "testhost", Username: "tester", Platform: "linux", Architecture: "amd64", MACAddress: macSentinel},
		}
		for _, v := range variants {
			assert.NotEqual(t, base, v.Digest())
		}
	})
}

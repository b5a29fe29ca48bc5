package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	t.Run("accepts checksummed address", func(t *testing.T) {
		assert.True(t, IsValidAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	})

	t.Run("accepts lowercase address", func(t *testing.T) {
		assert.True(t, IsValidAddress("0x52908400098527886e0f7030069857d2e4169ee7"))
	})

	t.Run("rejects short address", func(t *testing.T) {
		assert.False(t, IsValidAddress("0x1234"))
	})

	t.Run("rejects non-hex input", func(t *testing.T) {
		assert.False(t, IsValidAddress("not-an-address"))
		assert.False(t, IsValidAddress(""))
	})
}

func TestNormalizeAddress(t *testing.T) {
	checksummed := "0x52908400098527886E0F7030069857D2E4169EE7"
	lower := "0x52908400098527886e0f7030069857d2e4169ee7"

	assert.Equal(t, lower, NormalizeAddress(checksummed))
	assert.Equal(t, lower, NormalizeAddress(lower))
}

package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearline/crm/pkg/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("bare Indian mobile gets the country code", func(t *testing.T) {
		got, err := Normalize("9876543210")
		require.NoError(t, err)
		assert.Equal(t, "919876543210", got)
	})

	t.Run("already prefixed number is kept", func(t *testing.T) {
		got, err := Normalize("+919876543210")
		require.NoError(t, err)
		assert.Equal(t, "919876543210", got)
	})

	t.Run("spaces and dashes are tolerated", func(t *testing.T) {
		got, err := Normalize(" 98765-43210 ")
		require.NoError(t, err)
		assert.Equal(t, "919876543210", got)
	})

	t.Run("empty input is rejected", func(t *testing.T) {
		_, err := Normalize("   ")
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := Normalize("not-a-number")
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("too short is rejected", func(t *testing.T) {
		_, err := Normalize("12345")
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("9876543210"))
	assert.False(t, IsValid("12345"))
}

package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manualforge/ragcore/internal/core"
)

func TestTenantKeyFormat(t *testing.T) {
	key := TenantKey(42, "abc-123", "manual.pdf")
	assert.Equal(t, "42/abc-123/manual.pdf", key)
}

func TestValidateTenantKeyAccepts(t *testing.T) {
	require.NoError(t, ValidateTenantKey("42/abc-123/manual.pdf", 42))
}

func TestValidateTenantKeyWrongTenant(t *testing.T) {
	err := ValidateTenantKey("42/abc-123/manual.pdf", 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTenantIsolation)
}

func TestValidateTenantKeyMissingPrefix(t *testing.T) {
	for _, key := range []string{"manual.pdf", "abc/manual.pdf", "42/"} {
		err := ValidateTenantKey(key, 42)
		assert.ErrorIs(t, err, core.ErrTenantIsolation, "key %q", key)
	}
}

func TestValidateTenantKeyTraversal(t *testing.T) {
	err := ValidateTenantKey("42/../7/manual.pdf", 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTenantIsolation)
}

func TestValidateTenantKeyInvalidTenantID(t *testing.T) {
	assert.ErrorIs(t, ValidateTenantKey("0/x/manual.pdf", 0), core.ErrTenantIsolation)
	assert.ErrorIs(t, ValidateTenantKey("-1/x/manual.pdf", -1), core.ErrTenantIsolation)
}

package objectstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manualforge/ragcore/internal/core"
)

// TenantKey builds the canonical object key for a material's file:
// <tenant_id>/<material_id>/<filename>.
func TenantKey(tenantID int64, materialID, filename string) string {
	return fmt.Sprintf("%d/%s/%s", tenantID, materialID, filename)
}

// ValidateTenantKey refuses any key whose leading path segment is not the
// tenant id. Called before every storage round-trip so a mis-built key
// never leaves the process.
func ValidateTenantKey(key string, tenantID int64) error {
	if tenantID <= 0 {
		return fmt.Errorf("%w: tenant id %d", core.ErrTenantIsolation, tenantID)
	}
	seg, rest, ok := strings.Cut(key, "/")
	if !ok || rest == "" {
		return fmt.Errorf("%w: key %q has no tenant prefix", core.ErrTenantIsolation, key)
	}
	n, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || n != tenantID {
		return fmt.Errorf("%w: key %q does not belong to tenant %d", core.ErrTenantIsolation, key, tenantID)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("%w: key %q contains a path traversal", core.ErrTenantIsolation, key)
	}
	return nil
}

package core

import "errors"

// ErrTenantIsolation flags a key or query that is not correctly scoped to a
// tenant. This is a programming-contract violation, not a recoverable
// runtime condition: callers should treat it as a bug.
var ErrTenantIsolation = errors.New("tenant isolation violation")

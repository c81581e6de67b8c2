// Package store persists the tenant resources whose rows are metered by
// billing: leads, exports and API keys. Every query is scoped to an
// organization.
package store

import (
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 50

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

// Package auth holds the permission model shared by the API layer and the
// engine. Tiers are opaque strings resolved per project; the engine itself
// only reads them to decide cost redaction.
package auth

import "fmt"

const (
	TierOwner    = "owner"
	TierAdmin    = "admin"
	TierSupport  = "support"
	TierEmployee = "employee"
)

// ForbiddenError signals that the caller's tier does not grant an action.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// CanManageTimelines reports whether a tier may create and mutate timelines.
func CanManageTimelines(tier string) bool {
	return tier == TierOwner || tier == TierAdmin
}

// CanDeleteTimelines reports whether a tier may delete timeline revisions.
func CanDeleteTimelines(tier string) bool {
	return tier == TierOwner
}

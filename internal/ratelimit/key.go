package ratelimit

import (
	"fmt"

	"gtin-api/internal/config"
)

// Key identifies one admission-control bucket.
type Key struct {
	Scope   config.Scope
	ScopeID string
	Class   config.EndpointClass
}

func (k Key) String() string {
	return fmt.Sprintf("rl:%s:%s:%s", k.Scope, k.ScopeID, k.Class)
}

// Cooldown is the lock key used when a class combines a cooldown with
// another primitive.
func (k Key) Cooldown() string {
	return k.String() + ":cooldown"
}

// Daily is the base key of the calendar-day counter; the gate appends the
// reference-zone date.
func (k Key) Daily() string {
	return k.String() + ":daily"
}

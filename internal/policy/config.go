package policy

import (
	"time"

	"github.com/fleetworks/fleet-api/internal/config"
)

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies but doesn't enforce them (log only)
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// Config holds policy engine configuration
type Config struct {
	Mode Mode
	// FailClosed denies requests when the policy cannot be evaluated.
	FailClosed bool
	CacheSize  int
	CacheTTL   time.Duration
	// Module replaces the embedded policy when set.
	Module string
}

// FromSettings maps the service configuration onto engine settings.
func FromSettings(pc config.PolicyConfig) Config {
	return Config{
		Mode:       Mode(pc.Mode),
		FailClosed: pc.FailClosed,
		CacheSize:  1000,
		CacheTTL:   5 * time.Minute,
	}
}

package updatemanager

import (
	"time"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
)

const (
	DefaultUpdateCheckTimeout        = 12 * time.Hour
	DefaultUpdateCanStartTimeout     = time.Minute
	DefaultUpdateCanBeAppliedTimeout = 5 * time.Second

	// fallbackTimeout applies to decision kinds without a configured timeout.
	fallbackTimeout = time.Minute
)

// Config holds the evaluation budget of every decision kind. The budget is an
// absolute deadline computed once per request and shared by all its passes.
type Config struct {
	Timeouts map[evaluation.Kind]time.Duration
}

// DefaultConfig returns the stock timeouts.
func DefaultConfig() Config {
	return Config{
		Timeouts: map[evaluation.Kind]time.Duration{
			policy.KindUpdateCheckAllowed: DefaultUpdateCheckTimeout,
			policy.KindUpdateCanStart:     DefaultUpdateCanStartTimeout,
			policy.KindUpdateCanBeApplied: DefaultUpdateCanBeAppliedTimeout,
		},
	}
}

// Timeout returns the budget for kind.
func (c Config) Timeout(kind evaluation.Kind) time.Duration {
	if d, ok := c.Timeouts[kind]; ok && d > 0 {
		return d
	}
	return fallbackTimeout
}

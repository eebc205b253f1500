package policy

import (
	"regexp"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// MinimumVersion lets an update through unconditionally when the running OS is
// older than the minimum version the administrator requires.
type MinimumVersion struct {
	system       state.SystemProvider
	devicePolicy state.DevicePolicyProvider
}

func NewMinimumVersion(system state.SystemProvider, devicePolicy state.DevicePolicyProvider) *MinimumVersion {
	return &MinimumVersion{system: system, devicePolicy: devicePolicy}
}

func (p *MinimumVersion) Name() string {
	return "MinimumVersionPolicy"
}

func (p *MinimumVersion) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	current, ok := parseVersionVariable(ec, p.system.OSVersion())
	if !ok {
		log.Debugf("%s: current OS version unavailable, deferring", p.Name())
		return evaluation.Continue
	}

	minimum, ok := parseVersionVariable(ec, p.devicePolicy.MinimumVersion())
	if !ok {
		return evaluation.Continue
	}

	if !current.LessThan(minimum) {
		log.Debugf("%s: current version %s satisfies minimum %s", p.Name(), current, minimum)
		return evaluation.Continue
	}

	log.Infof("%s: current version %s is below minimum %s, allowing update", p.Name(), current, minimum)
	if d, ok := data.(*UpdateCanBeAppliedData); ok {
		d.ErrorCode = ErrorCodeSuccess
	}
	return evaluation.Succeeded
}

// numericVersion matches dotted numeric versions such as 13315.60.12.
// Prerelease and metadata suffixes are rejected.
var numericVersion = regexp.MustCompile(`^\d+(\.\d+)*$`)

// parseVersionVariable reads v and parses it. Absent and malformed values are
// reported the same way.
func parseVersionVariable(ec *evaluation.Context, v variable.Variable[string]) (*goversion.Version, bool) {
	raw, ok := evaluation.Read[string](ec, v)
	if !ok {
		return nil, false
	}
	if !numericVersion.MatchString(raw) {
		log.Warnf("unable to parse %s %q: not a dotted numeric version", v.Name(), raw)
		return nil, false
	}
	parsed, err := goversion.NewVersion(raw)
	if err != nil {
		log.Warnf("unable to parse %s %q: %v", v.Name(), raw, err)
		return nil, false
	}
	return parsed, true
}

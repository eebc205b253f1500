package state

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
	"github.com/netbirdio/updateengine/util"
)

const (
	oobePollInterval   = time.Minute
	uptimePollInterval = 5 * time.Minute
)

// SystemOptions tunes what the system provider reports.
type SystemOptions struct {
	// OSVersion overrides the detected platform version when not empty.
	OSVersion      string
	OfficialBuild  bool
	OOBEEnabled    bool
	OOBEMarkerPath string
}

// SystemInfo reports facts about the host, read through gopsutil.
type SystemInfo struct {
	osVersion       variable.Variable[string]
	isOfficialBuild variable.Variable[bool]
	isOOBEEnabled   variable.Variable[bool]
	isOOBEComplete  variable.Variable[bool]
	uptime          variable.Variable[time.Duration]
}

var _ SystemProvider = (*SystemInfo)(nil)

// NewSystemInfo detects the platform version once and builds the variables.
func NewSystemInfo(ctx context.Context, opts SystemOptions) *SystemInfo {
	osVersion := opts.OSVersion
	if osVersion == "" {
		_, _, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			log.Warnf("failed to detect platform version: %v", err)
		}
		osVersion = version
	}
	log.Debugf("system: os version %q, official build %t", osVersion, opts.OfficialBuild)

	markerPath := opts.OOBEMarkerPath

	return &SystemInfo{
		osVersion: variable.NewFunc("os_version", 0, func() (string, bool) {
			return osVersion, osVersion != ""
		}),
		isOfficialBuild: variable.NewConst("is_official_build", opts.OfficialBuild),
		isOOBEEnabled:   variable.NewConst("is_oobe_enabled", opts.OOBEEnabled),
		isOOBEComplete: variable.NewFunc("is_oobe_complete", oobePollInterval, func() (bool, bool) {
			if markerPath == "" {
				return false, false
			}
			return util.FileExists(markerPath), true
		}),
		uptime: variable.NewFunc("uptime", uptimePollInterval, func() (time.Duration, bool) {
			seconds, err := host.Uptime()
			if err != nil {
				log.Debugf("failed to read uptime: %v", err)
				return 0, false
			}
			return time.Duration(seconds) * time.Second, true
		}),
	}
}

func (s *SystemInfo) OSVersion() variable.Variable[string] { return s.osVersion }

func (s *SystemInfo) IsOfficialBuild() variable.Variable[bool] { return s.isOfficialBuild }

func (s *SystemInfo) IsOOBEEnabled() variable.Variable[bool] { return s.isOOBEEnabled }

func (s *SystemInfo) IsOOBEComplete() variable.Variable[bool] { return s.isOOBEComplete }

func (s *SystemInfo) Uptime() variable.Variable[time.Duration] { return s.uptime }

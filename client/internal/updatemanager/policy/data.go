package policy

import (
	"time"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
)

const (
	KindUpdateCheckAllowed evaluation.Kind = "UpdateCheckAllowed"
	KindUpdateCanBeApplied evaluation.Kind = "UpdateCanBeApplied"
	KindUpdateCanStart     evaluation.Kind = "UpdateCanStart"
)

// ErrorCode is the application-level outcome attached to apply decisions.
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = iota
	ErrorCodeError
	ErrorCodeOmahaUpdateDeferredPerPolicy
	ErrorCodeOmahaUpdateIgnoredPerPolicy
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorCodeSuccess:
		return "Success"
	case ErrorCodeError:
		return "Error"
	case ErrorCodeOmahaUpdateDeferredPerPolicy:
		return "OmahaUpdateDeferredPerPolicy"
	case ErrorCodeOmahaUpdateIgnoredPerPolicy:
		return "OmahaUpdateIgnoredPerPolicy"
	default:
		return "Unknown"
	}
}

func (e ErrorCode) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UpdateCheckParams answers whether an update check may run now and how it
// should be parameterized. It carries no inputs.
type UpdateCheckParams struct {
	UpdatesEnabled            bool   `json:"updates_enabled" hash:"ignore"`
	TargetChannel             string `json:"target_channel,omitempty" hash:"ignore"`
	TargetVersionPrefix       string `json:"target_version_prefix,omitempty" hash:"ignore"`
	RollbackAllowed           bool   `json:"rollback_allowed" hash:"ignore"`
	RollbackDataSaveRequested bool   `json:"rollback_data_save_requested" hash:"ignore"`
	RollbackAllowedMilestones int    `json:"rollback_allowed_milestones" hash:"ignore"`
	Interactive               bool   `json:"interactive" hash:"ignore"`
}

func (p *UpdateCheckParams) Kind() evaluation.Kind { return KindUpdateCheckAllowed }

func (p *UpdateCheckParams) Clone() evaluation.Data {
	c := *p
	return &c
}

func (p *UpdateCheckParams) CopyResult(src evaluation.Data) {
	*p = *src.(*UpdateCheckParams)
}

// InstallPlan describes the payload the response handler wants to apply.
type InstallPlan struct {
	Version     string `json:"version"`
	IsRollback  bool   `json:"is_rollback"`
	Interactive bool   `json:"interactive"`

	PowerwashRequired         bool `json:"powerwash_required" hash:"ignore"`
	RollbackDataSaveRequested bool `json:"rollback_data_save_requested" hash:"ignore"`
}

// UpdateCanBeAppliedData asks whether Plan may be applied now. Policies may
// amend the plan's output flags and must set ErrorCode when they decide.
type UpdateCanBeAppliedData struct {
	Plan *InstallPlan `json:"plan"`

	ErrorCode ErrorCode `json:"error_code" hash:"ignore"`
}

func (d *UpdateCanBeAppliedData) Kind() evaluation.Kind { return KindUpdateCanBeApplied }

func (d *UpdateCanBeAppliedData) Clone() evaluation.Data {
	c := *d
	if d.Plan != nil {
		plan := *d.Plan
		c.Plan = &plan
	}
	return &c
}

func (d *UpdateCanBeAppliedData) CopyResult(src evaluation.Data) {
	s := src.(*UpdateCanBeAppliedData)
	d.ErrorCode = s.ErrorCode
	if d.Plan == nil || s.Plan == nil {
		return
	}
	d.Plan.PowerwashRequired = s.Plan.PowerwashRequired
	d.Plan.RollbackDataSaveRequested = s.Plan.RollbackDataSaveRequested
}

// UpdateState is what the attempter knows about the update it is about to
// download.
type UpdateState struct {
	Interactive bool `json:"interactive"`
	// FirstSeen is when the current update was first offered by the server.
	FirstSeen time.Time `json:"first_seen"`
	// ScatterWaitPeriod is the wait chosen by an earlier decision, zero if none.
	ScatterWaitPeriod   time.Duration `json:"scatter_wait_period"`
	NumDownloadFailures int           `json:"num_download_failures"`
	LastDownloadFailure time.Time     `json:"last_download_failure"`
	IsBackoffDisabled   bool          `json:"is_backoff_disabled"`
}

// CannotStartReason explains a negative UpdateCanStart decision.
type CannotStartReason string

const (
	CannotStartReasonNone              CannotStartReason = ""
	CannotStartReasonMeteredConnection CannotStartReason = "MeteredConnection"
	CannotStartReasonScattering        CannotStartReason = "Scattering"
	CannotStartReasonBackoff           CannotStartReason = "Backoff"
)

// UpdateDownloadParams is the outcome of an UpdateCanStart decision.
type UpdateDownloadParams struct {
	UpdateCanStart    bool              `json:"update_can_start"`
	CannotStartReason CannotStartReason `json:"cannot_start_reason,omitempty"`
	ScatterWaitPeriod time.Duration     `json:"scatter_wait_period"`
	BackoffExpiry     time.Time         `json:"backoff_expiry"`
}

// UpdateCanStartData asks whether downloading the update may start now.
type UpdateCanStartData struct {
	State UpdateState `json:"state"`

	Result UpdateDownloadParams `json:"result" hash:"ignore"`
}

func (d *UpdateCanStartData) Kind() evaluation.Kind { return KindUpdateCanStart }

func (d *UpdateCanStartData) Clone() evaluation.Data {
	c := *d
	return &c
}

func (d *UpdateCanStartData) CopyResult(src evaluation.Data) {
	d.Result = src.(*UpdateCanStartData).Result
}

// NewData returns an empty data bundle for kind, or nil for an unknown kind.
func NewData(kind evaluation.Kind) evaluation.Data {
	switch kind {
	case KindUpdateCheckAllowed:
		return &UpdateCheckParams{}
	case KindUpdateCanBeApplied:
		return &UpdateCanBeAppliedData{Plan: &InstallPlan{}}
	case KindUpdateCanStart:
		return &UpdateCanStartData{}
	default:
		return nil
	}
}

package sync

import (
	"errors"
	"time"
)

// Sentinel errors carried by step reports. Match them with errors.Is.
var (
	ErrPreSyncFailed        = errors.New("pre-sync from OneDrive failed")
	ErrPostSyncFailed       = errors.New("post-sync to OneDrive failed")
	ErrMetadataUpdateFailed = errors.New("metadata update failed")
	ErrCloudDisabled        = errors.New("OneDrive integration is not enabled")
)

// Phase names one step of a synced operation.
type Phase string

// The phases of a synced operation, in execution order.
const (
	PhasePreSync   Phase = "pre_sync"
	PhaseOperation Phase = "operation"
	PhasePostSync  Phase = "post_sync"
	PhaseMetadata  Phase = "metadata"
)

// StepStatus is the outcome of one phase.
type StepStatus string

// Step outcomes. Degraded steps never change Result.Success; a failed post-sync does.
const (
	StepSkipped  StepStatus = "skipped"
	StepOK       StepStatus = "ok"
	StepDegraded StepStatus = "degraded"
	StepFailed   StepStatus = "failed"
)

// StepReport records what happened in one phase.
type StepReport struct {
	Phase   Phase      `json:"phase"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Err     error      `json:"-"`
}

// Result is the sync outcome of one synced operation. It is produced once per
// invocation and never persisted.
type Result struct {
	Success         bool         `json:"success"`
	Message         string       `json:"message"`
	EmbedURLUpdated bool         `json:"embedUrlUpdated"`
	NewEmbedURL     string       `json:"newEmbedUrl,omitempty"`
	Steps           []StepReport `json:"steps,omitempty"`
}

// Step returns the report for phase, if that phase ran or was skipped.
func (r Result) Step(phase Phase) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Phase == phase {
			return s, true
		}
	}
	return StepReport{}, false
}

// Degraded reports whether any phase completed in degraded mode.
func (r Result) Degraded() bool {
	for _, s := range r.Steps {
		if s.Status == StepDegraded {
			return true
		}
	}
	return false
}

// Err joins the errors of every degraded or failed phase. It is nil for a
// clean run.
func (r Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Outcome pairs the operation's own result with the sync result.
type Outcome[R any] struct {
	Result R
	Sync   Result
}

// Event is published to observers after every synced operation.
type Event struct {
	OwnerID  string
	Filename string
	FileID   string
	Result   Result
	At       time.Time
}

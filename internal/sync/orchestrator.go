// Package sync runs an operation against a spreadsheet's MCP working copy and
// keeps the OneDrive copy and the metadata record consistent around it:
// optional pre-sync from OneDrive, the operation, mandatory post-sync back to
// OneDrive, then a metadata refresh. Nothing is rolled back.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/cloud"
)

// EmbedRecorder is the part of the metadata store the orchestrator writes.
type EmbedRecorder interface {
	UpdateEmbedURL(ctx context.Context, id, ownerID, embedURL string, at time.Time) error
}

// Observer is notified once per synced operation.
type Observer interface {
	SyncCompleted(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// SyncCompleted implements Observer.
func (f ObserverFunc) SyncCompleted(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to each non-nil observer in order.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(ctx context.Context, ev Event) {
		for _, o := range obs {
			if o != nil {
				o.SyncCompleted(ctx, ev)
			}
		}
	})
}

// Options control one synced operation.
type Options struct {
	// FileID is the metadata row to refresh after the post-sync.
	FileID string
	// CloudFileID enables the pre-sync when SyncFromCloudFirst is set.
	CloudFileID        string
	SyncFromCloudFirst bool
	// SyncOnFailure attempts the post-sync even when the operation fails.
	SyncOnFailure bool
}

// Config wires an Orchestrator.
type Config struct {
	Cloud    cloud.Store
	Files    EmbedRecorder
	Observer Observer
	Logger   *slog.Logger
	// Folder is the OneDrive folder name; defaults to cloud.DefaultFolder.
	Folder string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator is safe for concurrent use. Work on the same owner and
// filename is serialized.
type Orchestrator struct {
	cloud    cloud.Store
	files    EmbedRecorder
	observer Observer
	logger   *slog.Logger
	folder   string
	now      func() time.Time
	locks    *keyedLock
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		cloud:    cfg.Cloud,
		files:    cfg.Files,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		folder:   cfg.Folder,
		now:      cfg.Now,
		locks:    newKeyedLock(),
	}
	if o.cloud == nil {
		o.cloud = cloud.Disabled{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.folder == "" {
		o.folder = cloud.DefaultFolder
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Lock holds the same per-file lock PerformSyncedOperation takes, for writers
// that replace the working copy outside a synced operation. The returned func
// must be called exactly once.
func (o *Orchestrator) Lock(ctx context.Context, ownerID, filename string) (func(), error) {
	release, err := o.locks.acquire(ctx, ownerID+"/"+filename)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", filename, err)
	}
	return release, nil
}

// PerformSyncedOperation runs op on the working copy of (ownerID, filename)
// and then pushes the working copy to OneDrive.
//
// Sync problems never produce an error: they are reported in Outcome.Sync.
// An error from op is returned unchanged with a zero Outcome, and no post-sync
// runs unless opts.SyncOnFailure is set. The only other error is ctx ending
// while waiting for another operation on the same file.
func PerformSyncedOperation[R any](ctx context.Context, o *Orchestrator, ownerID, filename string, op func(context.Context) (R, error), opts Options) (Outcome[R], error) {
	release, err := o.Lock(ctx, ownerID, filename)
	if err != nil {
		return Outcome[R]{}, err
	}
	defer release()

	log := o.logger.With(slog.String("owner", ownerID), slog.String("file", filename))
	log.Debug("starting synced operation",
		slog.String("file_id", opts.FileID),
		slog.Bool("pre_sync", opts.SyncFromCloudFirst))

	steps := []StepReport{o.preSync(ctx, log, ownerID, filename, opts)}

	value, opErr := op(ctx)
	if opErr != nil {
		steps = append(steps, StepReport{Phase: PhaseOperation, Status: StepFailed, Message: opErr.Error(), Err: opErr})
		log.Warn("operation failed", slog.String("phase", string(PhaseOperation)), slog.String("error", opErr.Error()))

		if !opts.SyncOnFailure {
			res := Result{
				Success: false,
				Message: "Synced operation failed: " + opErr.Error(),
				Steps: append(steps,
					StepReport{Phase: PhasePostSync, Status: StepSkipped},
					StepReport{Phase: PhaseMetadata, Status: StepSkipped}),
			}
			o.publish(ctx, ownerID, filename, opts.FileID, res)
			return Outcome[R]{}, opErr
		}

		res := o.postSync(ctx, log, ownerID, filename, opts.FileID, steps)
		o.publish(ctx, ownerID, filename, opts.FileID, res)
		return Outcome[R]{Result: value, Sync: res}, opErr
	}
	steps = append(steps, StepReport{Phase: PhaseOperation, Status: StepOK})

	res := o.postSync(ctx, log, ownerID, filename, opts.FileID, steps)
	o.publish(ctx, ownerID, filename, opts.FileID, res)
	return Outcome[R]{Result: value, Sync: res}, nil
}

// preSync refreshes the working copy from OneDrive. Failure is swallowed.
func (o *Orchestrator) preSync(ctx context.Context, log *slog.Logger, ownerID, filename string, opts Options) StepReport {
	if !opts.SyncFromCloudFirst || opts.CloudFileID == "" {
		return StepReport{Phase: PhasePreSync, Status: StepSkipped}
	}

	err := o.checkEnabled(ctx)
	if err == nil {
		_, err = o.cloud.SyncCloudToLocal(ctx, ownerID, opts.CloudFileID, filename)
	}
	if err != nil {
		log.Warn("pre-sync failed, continuing with working copy",
			slog.String("phase", string(PhasePreSync)),
			slog.String("error", err.Error()))
		return StepReport{
			Phase:   PhasePreSync,
			Status:  StepDegraded,
			Message: "Failed to sync from OneDrive: " + err.Error(),
			Err:     fmt.Errorf("%w: %w", ErrPreSyncFailed, err),
		}
	}

	log.Debug("pre-sync complete", slog.String("phase", string(PhasePreSync)))
	return StepReport{Phase: PhasePreSync, Status: StepOK, Message: "File synced from OneDrive successfully"}
}

// postSync pushes the working copy to OneDrive and records the new embed URL.
func (o *Orchestrator) postSync(ctx context.Context, log *slog.Logger, ownerID, filename, fileID string, steps []StepReport) Result {
	if err := o.checkEnabled(ctx); err != nil {
		msg := "Failed to sync to OneDrive: " + err.Error()
		if cloudDisabled(err) {
			msg = "OneDrive sync skipped: " + err.Error()
		}
		log.Warn("post-sync failed", slog.String("phase", string(PhasePostSync)), slog.String("error", err.Error()))
		return Result{
			Success: false,
			Message: msg,
			Steps: append(steps,
				StepReport{Phase: PhasePostSync, Status: StepFailed, Message: msg, Err: fmt.Errorf("%w: %w", ErrPostSyncFailed, err)},
				StepReport{Phase: PhaseMetadata, Status: StepSkipped}),
		}
	}

	resp, err := o.cloud.SyncLocalToCloud(ctx, ownerID, filename, o.folder)
	if err != nil {
		msg := "Failed to sync to OneDrive: " + err.Error()
		log.Warn("post-sync failed", slog.String("phase", string(PhasePostSync)), slog.String("error", err.Error()))
		return Result{
			Success: false,
			Message: msg,
			Steps: append(steps,
				StepReport{Phase: PhasePostSync, Status: StepFailed, Message: msg, Err: fmt.Errorf("%w: %w", ErrPostSyncFailed, err)},
				StepReport{Phase: PhaseMetadata, Status: StepSkipped}),
		}
	}

	res := Result{
		Success:     true,
		Message:     "File synced to OneDrive successfully",
		NewEmbedURL: cloud.NormalizeEmbedURL(resp.EmbedURL),
	}
	steps = append(steps, StepReport{Phase: PhasePostSync, Status: StepOK, Message: resp.Message})

	if fileID == "" || res.NewEmbedURL == "" || o.files == nil {
		res.Steps = append(steps, StepReport{Phase: PhaseMetadata, Status: StepSkipped})
		return res
	}

	if err := o.files.UpdateEmbedURL(ctx, fileID, ownerID, res.NewEmbedURL, o.now()); err != nil {
		log.Warn("failed to record new embed URL",
			slog.String("phase", string(PhaseMetadata)),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
		res.Steps = append(steps, StepReport{
			Phase:   PhaseMetadata,
			Status:  StepDegraded,
			Message: "Failed to update file record: " + err.Error(),
			Err:     fmt.Errorf("%w: %w", ErrMetadataUpdateFailed, err),
		})
		return res
	}

	res.EmbedURLUpdated = true
	res.Steps = append(steps, StepReport{Phase: PhaseMetadata, Status: StepOK})
	log.Info("synced to OneDrive", slog.String("file_id", fileID))
	return res
}

// checkEnabled returns ErrCloudDisabled when OneDrive is switched off.
func (o *Orchestrator) checkEnabled(ctx context.Context) error {
	st, err := o.cloud.Status(ctx)
	if err != nil {
		return fmt.Errorf("could not check OneDrive status: %w", err)
	}
	if !st.Enabled {
		if st.Message != "" && st.Message != ErrCloudDisabled.Error() {
			return fmt.Errorf("%w (%s)", ErrCloudDisabled, st.Message)
		}
		return ErrCloudDisabled
	}
	return nil
}

func cloudDisabled(err error) bool {
	return errors.Is(err, ErrCloudDisabled)
}

func (o *Orchestrator) publish(ctx context.Context, ownerID, filename, fileID string, res Result) {
	if o.observer == nil {
		return
	}
	o.observer.SyncCompleted(ctx, Event{
		OwnerID:  ownerID,
		Filename: filename,
		FileID:   fileID,
		Result:   res,
		At:       o.now(),
	})
}

package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor applies decisions one at a time against a provider and a local store
type Executor struct {
	provider    SyncProvider
	local       LocalStore
	logger      *zap.Logger
	retryPolicy *RetryPolicy
}

// NewExecutor creates a new executor
func NewExecutor(provider SyncProvider, local LocalStore, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		provider:    provider,
		local:       local,
		logger:      logger,
		retryPolicy: DefaultRetryPolicy(logger.Named("retry")),
	}
}

// SetRetryPolicy sets a custom retry policy
func (ex *Executor) SetRetryPolicy(policy *RetryPolicy) {
	ex.retryPolicy = policy
}

// Execute runs the decisions sequentially and folds the outcome into result.
// A failed item is recorded and the loop moves on. Cancellation is checked
// between items only; an item that has started always completes.
func (ex *Executor) Execute(ctx context.Context, decisions []*Decision, result *SyncResult, progressFn ProgressCallback) {
	transfers := 0
	for _, d := range decisions {
		if d.Action != ActionNone {
			transfers++
		}
	}
	if transfers > 0 {
		ex.logger.Info("executing sync actions sequentially", zap.Int("count", transfers))
	}

	done := 0
	for _, d := range decisions {
		if d.Action == ActionNone {
			result.Skipped++
			continue
		}

		select {
		case <-ctx.Done():
			ex.logger.Warn("execution cancelled",
				zap.Int("completed", done),
				zap.Int("total", transfers),
			)
			result.Cancelled = true
			result.Errors = append(result.Errors, fmt.Sprintf("%v after %d of %d transfers", ErrSyncAborted, done, transfers))
			return
		default:
		}

		if progressFn != nil {
			progressFn(&SyncProgress{
				Phase:            "executing",
				CurrentFile:      d.Name,
				CurrentAction:    string(d.Action),
				FilesProcessed:   done,
				FilesTotal:       transfers,
				BytesTransferred: result.BytesTransferred,
				Percentage:       20 + float64(done)/float64(transfers)*75,
			})
		}

		ex.executeDecision(ctx, d, result)
		done++
	}
}

func (ex *Executor) executeDecision(ctx context.Context, d *Decision, result *SyncResult) {
	subject := d.Local
	if subject == nil {
		subject = d.Remote
	}
	_ = subject.SetStatus(StatusSyncing, "")

	var err error
	switch d.Action {
	case ActionUpload:
		err = ex.upload(ctx, d, result)
	case ActionDownload:
		err = ex.download(ctx, d, d.Name, result)
	case ActionKeepBoth:
		err = ex.keepBoth(ctx, d, result)
	default:
		err = SyncErr("execute", fmt.Errorf("unknown action %q", d.Action))
	}

	if err != nil {
		ex.logger.Error("action failed",
			zap.String("action", string(d.Action)),
			zap.String("name", d.Name),
			zap.Error(err),
		)
		_ = subject.SetStatus(StatusFailed, err.Error())
		result.AddError(d.Name, string(d.Action), err)
		return
	}

	_ = subject.SetStatus(StatusSuccess, "")
}

// keepBoth saves the remote copy aside, uploads local over it, then uploads
// the renamed copy so both sides list the same files afterwards
func (ex *Executor) keepBoth(ctx context.Context, d *Decision, result *SyncResult) error {
	// the remote copy is saved aside first so a failed upload loses nothing
	if err := ex.download(ctx, d, d.KeepBothName, result); err != nil {
		return err
	}
	if err := ex.upload(ctx, d, result); err != nil {
		return err
	}

	aside := &SyncItem{ID: d.KeepBothName, Name: d.KeepBothName, Status: StatusIdle, Direction: d.Local.Direction}
	return ex.upload(ctx, &Decision{Name: d.KeepBothName, Local: aside, Action: ActionUpload}, result)
}

func (ex *Executor) upload(ctx context.Context, d *Decision, result *SyncResult) error {
	data, err := ex.local.Read(ctx, d.Local)
	if err != nil {
		return WrapSyncError(err, d.Name, "read local")
	}

	target := d.Local.Clone()
	if d.Remote != nil {
		target.ID = d.Remote.ID
		target.RemotePath = d.Remote.RemotePath
	} else {
		target.RemotePath = d.Local.Name
	}

	err = ex.retryPolicy.Do(ctx, "upload:"+d.Name, func(ctx context.Context) error {
		return ex.provider.UploadFile(ctx, target, data)
	})
	if err != nil {
		return WrapSyncError(err, d.Name, "upload")
	}

	result.Uploaded++
	result.BytesTransferred += int64(len(data))
	ex.logger.Debug("uploaded", zap.String("name", d.Name), zap.Int("bytes", len(data)))
	return nil
}

func (ex *Executor) download(ctx context.Context, d *Decision, localName string, result *SyncResult) error {
	var data []byte
	err := ex.retryPolicy.Do(ctx, "download:"+d.Name, func(ctx context.Context) error {
		var err error
		data, err = ex.provider.DownloadFile(ctx, d.Remote)
		return err
	})
	if err != nil {
		return WrapSyncError(err, d.Name, "download")
	}

	modTime := timeNow()
	if d.Remote.RemoteModified != nil {
		modTime = *d.Remote.RemoteModified
	}
	if err := ex.local.Write(ctx, localName, data, modTime); err != nil {
		return WrapSyncError(err, localName, "write local")
	}

	result.Downloaded++
	result.BytesTransferred += int64(len(data))
	ex.logger.Debug("downloaded",
		zap.String("name", d.Name),
		zap.String("local_name", localName),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Package transfer runs uploads and downloads on background workers while the
// caller's goroutine polls progress, relays it to a status message and
// reports the outcome.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"uptofetch/internal"
	"uptofetch/utils"
)

const (
	DefaultEditInterval  = 3 * time.Second
	DefaultCancelMessage = "Process Canceled!"

	invalidPathMessage = "invalid file path provided?"
	invalidLinkMessage = "invalid link provided?"
)

// Options configures an Orchestrator. Executor is required; the other
// collaborators are only needed by the operations that use them.
type Options struct {
	Uploader      internal.Uploader
	Fetcher       internal.Fetcher
	Attachments   internal.AttachmentFetcher
	Executor      internal.Executor
	EditInterval  time.Duration
	WorkDir       string
	CancelMessage string
	Logger        *internal.SecureLogger
}

// Orchestrator drives transfer jobs from source resolution to the final
// report.
type Orchestrator struct {
	opts    Options
	fileOps *utils.FileOperations
	logger  *internal.SecureLogger
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator, filling defaults for unset options
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Executor == nil {
		return nil, internal.NewValidationError("executor", "an executor is required")
	}
	if opts.EditInterval <= 0 {
		opts.EditInterval = DefaultEditInterval
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "uptofetch")
	}
	if opts.CancelMessage == "" {
		opts.CancelMessage = DefaultCancelMessage
	}
	if opts.Logger == nil {
		opts.Logger = internal.GetLogger()
	}

	return &Orchestrator{
		opts:    opts,
		fileOps: utils.NewFileOperations(),
		logger:  opts.Logger,
		now:     time.Now,
	}, nil
}

// Upload resolves req to a local file, uploads it on a worker and reports
// through msg. It returns once the job is terminal and the report was sent.
func (o *Orchestrator) Upload(ctx context.Context, msg internal.StatusMessage, req Request) *Job {
	directive := utils.ParseRenameDirective(req.Input)
	job := newJob(KindUpload, directive.Path)
	job.newName = directive.NewName
	log := o.logger.WithField("job", job.ID())

	unregister := msg.OnCancel(func() { o.cancelJob(job, log) })
	defer unregister()

	start := o.now()
	defer func() { o.report(ctx, msg, job, start) }()

	src, err := o.resolveSource(ctx, job, req, directive)
	if src.temporary {
		defer o.removeTemporary(job, log)
	}
	job.setLocalPath(src.path, src.temporary)
	if err != nil {
		o.sourceFailed(job, log, err)
		return job
	}
	if job.Outcome() != nil {
		return job
	}

	if !o.fileOps.FileExists(src.path) {
		o.fail(job, internal.NewLocalFileError(src.path, invalidPathMessage, nil), invalidPathMessage)
		return job
	}

	path := src.path
	if directive.HasRename() {
		path, err = o.fileOps.RenameInPlace(src.path, directive.NewName)
		if err != nil {
			o.fail(job, err, errorMessage(err))
			return job
		}
		job.setLocalPath(path, src.temporary)
		log.Debug("Renamed %s to %s", src.path, path)
	}

	if o.opts.Uploader == nil {
		o.fail(job, errors.New("no uploader configured"), "ERROR: no uploader configured")
		return job
	}

	start = o.now()
	o.run(ctx, msg, job, log, func(wctx context.Context) (string, error) {
		return o.opts.Uploader.UploadFile(wctx, path, job)
	})
	return job
}

// Download streams link into destDir on a worker and reports through msg
func (o *Orchestrator) Download(ctx context.Context, msg internal.StatusMessage, link, destDir string) *Job {
	link = strings.TrimSpace(link)
	job := newJob(KindDownload, link)
	log := o.logger.WithField("job", job.ID())

	unregister := msg.OnCancel(func() { o.cancelJob(job, log) })
	defer unregister()

	start := o.now()
	defer func() { o.report(ctx, msg, job, start) }()

	if !utils.IsURL(link) {
		o.fail(job, internal.NewValidationErrorWithValue("link", "not a URL", link), invalidLinkMessage)
		return job
	}
	if o.opts.Fetcher == nil {
		o.fail(job, errors.New("no fetcher configured"), "ERROR: no fetcher configured")
		return job
	}
	if destDir == "" {
		destDir = o.opts.WorkDir
	}

	o.run(ctx, msg, job, log, func(wctx context.Context) (string, error) {
		path, err := o.opts.Fetcher.Fetch(wctx, link, destDir, job)
		if path != "" {
			job.setLocalPath(path, false)
		}
		return path, err
	})
	return job
}

// run dispatches work on the executor and polls the job until the worker
// finishes, the caller cancels or ctx is done. The worker gets a context that
// is not canceled with ctx; it stops through Job.Canceled instead.
func (o *Orchestrator) run(ctx context.Context, msg internal.StatusMessage, job *Job, log *internal.SecureLogger, work func(context.Context) (string, error)) {
	if job.Outcome() != nil || !job.start() {
		return
	}

	if err := msg.Edit(ctx, fmt.Sprintf("Starting %s...", job.kind)); err != nil {
		log.Debug("status edit failed: %v", err)
	}

	wctx := context.WithoutCancel(ctx)
	err := o.opts.Executor.Submit(func() {
		defer close(job.workerDone)
		defer func() {
			if r := recover(); r != nil {
				log.Error("%s worker panicked: %v", job.kind, r)
				o.fail(job, fmt.Errorf("worker panic: %v", r), "ERROR: internal error")
			}
		}()

		result, err := work(wctx)
		switch {
		case err != nil && isCancellation(err):
			o.cancelJob(job, log)
		case err != nil:
			o.fail(job, err, errorMessage(err))
		case result != "":
			if !job.finish(&Outcome{State: StateCompleted, Result: result}) {
				log.Debug("discarding late %s result", job.kind)
				if job.kind == KindDownload {
					o.fileOps.RemoveIfExists(result)
				}
			}
		}
	})
	if err != nil {
		o.fail(job, err, errorMessage(err))
		return
	}

	o.observe(ctx, msg, job, log)
}

// observe relays non-empty, changed progress snapshots every EditInterval
func (o *Orchestrator) observe(ctx context.Context, msg internal.StatusMessage, job *Job, log *internal.SecureLogger) {
	ticker := time.NewTicker(o.opts.EditInterval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-job.workerDone:
			return
		case <-job.canceled:
			return
		case <-ctx.Done():
			o.cancelJob(job, log)
			return
		case <-ticker.C:
			snapshot := job.Snapshot()
			if snapshot == "" || snapshot == last {
				continue
			}
			if err := msg.Edit(ctx, snapshot); err != nil {
				log.Debug("status edit failed: %v", err)
				continue
			}
			last = snapshot
		}
	}
}

// report sends exactly one final message for the job
func (o *Orchestrator) report(ctx context.Context, msg internal.StatusMessage, job *Job, start time.Time) {
	elapsed := o.now().Sub(start)
	job.elapsed.Store(int64(elapsed))

	rctx := context.WithoutCancel(ctx)
	log := o.logger.WithField("job", job.ID())

	var err error
	out := job.Outcome()
	switch {
	case out == nil:
		text := fmt.Sprintf("failed to %s.. check logs?", job.kind)
		job.finish(&Outcome{State: StateFailed, Message: text})
		log.Warn("%s ended without a result", job.kind)
		err = msg.Err(rctx, text)

	case out.State == StateCompleted:
		seconds := int(elapsed / time.Second)
		log.Info("%s of %s finished in %d seconds", job.kind, job.input, seconds)
		err = msg.Edit(rctx, fmt.Sprintf("%s successfully in %d seconds\n\n%s", pastTense(job.kind), seconds, out.Result))

	case out.State == StateCanceled:
		err = msg.Edit(rctx, out.Message)

	default:
		log.Warn("%s of %s failed: %v", job.kind, job.input, out.Err)
		err = msg.Err(rctx, out.Message)
	}

	if err != nil {
		log.Error("failed to report %s result: %v", job.kind, err)
	}
}

func (o *Orchestrator) cancelJob(job *Job, log *internal.SecureLogger) {
	if job.cancel(o.opts.CancelMessage) {
		log.Info("%s canceled", job.kind)
	}
}

func (o *Orchestrator) fail(job *Job, err error, message string) {
	job.finish(&Outcome{State: StateFailed, Err: err, Message: message})
}

func (o *Orchestrator) sourceFailed(job *Job, log *internal.SecureLogger, err error) {
	if isCancellation(err) {
		o.cancelJob(job, log)
		return
	}
	o.fail(job, err, err.Error())
}

// removeTemporary deletes a fetched source. Caller-owned paths are never
// marked temporary.
func (o *Orchestrator) removeTemporary(job *Job, log *internal.SecureLogger) {
	if !job.temporary.Load() {
		return
	}
	path := job.path()
	if err := o.fileOps.RemoveIfExists(path); err != nil {
		log.Warn("failed to remove temporary file %s: %v", path, err)
	}
}

// errorMessage renders a failure for the status message
func errorMessage(err error) string {
	var ue *internal.UptoboxError
	if errors.As(err, &ue) {
		return "ERROR: " + ue.Reason()
	}
	return "ERROR: " + err.Error()
}

func pastTense(k Kind) string {
	if k == KindDownload {
		return "Downloaded"
	}
	return "Uploaded"
}

package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"uptofetch/internal"
)

// Kind is the direction of a transfer
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
)

// String returns the string representation of the kind
func (k Kind) String() string {
	if k == KindDownload {
		return "download"
	}
	return "upload"
}

// State is the lifecycle position of a job
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateCanceled
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s >= StateCompleted
}

// Outcome is the terminal record of a job. It is published once and never
// modified afterwards.
type Outcome struct {
	State   State
	Result  string
	Err     error
	Message string
}

// Job is a single upload or download. The worker writes progress and its
// outcome; the orchestrator loop reads them. Callers only see JobView.
type Job struct {
	id      string
	kind    Kind
	input   string
	newName string

	state     atomic.Int32
	progress  atomic.Pointer[string]
	outcome   atomic.Pointer[Outcome]
	localPath atomic.Pointer[string]
	temporary atomic.Bool
	elapsed   atomic.Int64

	workerDone chan struct{}
	canceled   chan struct{}
	cancelOnce sync.Once
}

var _ internal.TransferObserver = (*Job)(nil)

func newJob(kind Kind, input string) *Job {
	return &Job{
		id:         uuid.NewString(),
		kind:       kind,
		input:      input,
		workerDone: make(chan struct{}),
		canceled:   make(chan struct{}),
	}
}

// ID returns the unique job identifier
func (j *Job) ID() string {
	return j.id
}

// Kind returns the transfer direction
func (j *Job) Kind() Kind {
	return j.kind
}

// State returns the current state
func (j *Job) State() State {
	if o := j.outcome.Load(); o != nil {
		return o.State
	}
	return State(j.state.Load())
}

// Progress stores the latest snapshot. Last write wins.
func (j *Job) Progress(snapshot string) {
	j.progress.Store(&snapshot)
}

// Snapshot returns the latest progress snapshot, or "" if none was reported
func (j *Job) Snapshot() string {
	if p := j.progress.Load(); p != nil {
		return *p
	}
	return ""
}

// Canceled reports whether the job was canceled. Workers poll it between
// chunks and stop early.
func (j *Job) Canceled() bool {
	o := j.outcome.Load()
	return o != nil && o.State == StateCanceled
}

// Outcome returns the terminal record, or nil while the job is not finished
func (j *Job) Outcome() *Outcome {
	return j.outcome.Load()
}

// Elapsed returns the wall-clock duration of the run, set when it ends
func (j *Job) Elapsed() time.Duration {
	return time.Duration(j.elapsed.Load())
}

func (j *Job) start() bool {
	return j.state.CompareAndSwap(int32(StateCreated), int32(StateRunning))
}

// finish publishes o if the job has no outcome yet. A late outcome, such as
// a worker result after cancellation, is discarded.
func (j *Job) finish(o *Outcome) bool {
	return j.outcome.CompareAndSwap(nil, o)
}

func (j *Job) cancel(message string) bool {
	ok := j.finish(&Outcome{
		State:   StateCanceled,
		Err:     internal.NewCanceledError(message),
		Message: message,
	})
	j.cancelOnce.Do(func() { close(j.canceled) })
	return ok
}

func (j *Job) setLocalPath(path string, temporary bool) {
	j.localPath.Store(&path)
	j.temporary.Store(temporary)
}

func (j *Job) path() string {
	if p := j.localPath.Load(); p != nil {
		return *p
	}
	return ""
}

// JobView is a read-only copy of a job's state
type JobView struct {
	ID        string
	Kind      Kind
	Input     string
	NewName   string
	LocalPath string
	Temporary bool
	State     State
	Progress  string
	Result    string
	Err       error
	Message   string
	Elapsed   time.Duration
}

// View returns a consistent-enough copy for display and tests
func (j *Job) View() JobView {
	v := JobView{
		ID:        j.id,
		Kind:      j.kind,
		Input:     j.input,
		NewName:   j.newName,
		LocalPath: j.path(),
		Temporary: j.temporary.Load(),
		State:     j.State(),
		Progress:  j.Snapshot(),
		Elapsed:   j.Elapsed(),
	}
	if o := j.outcome.Load(); o != nil {
		v.Result = o.Result
		v.Err = o.Err
		v.Message = o.Message
	}
	return v
}

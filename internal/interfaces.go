package internal

import "context"

// LinkResolver turns share codes into file information and download links
type LinkResolver interface {
	CheckAccessTier(ctx context.Context) (AccessTier, error)
	FileMetadata(ctx context.Context, code ShareCode) (*FileInfo, error)
	Search(ctx context.Context, path string, limit int, query string) ([]SearchResult, error)
	ResolveDownloadLink(ctx context.Context, code ShareCode, handler WaitHandler) (string, error)
}

// WaitHandler is the decision point of a free-tier link request. ConfirmWait
// blocks until the caller accepts or declines the wait; Countdown receives
// the remaining time as MM:SS once per second while waiting.
type WaitHandler interface {
	ConfirmWait(ctx context.Context, waitSeconds int) (bool, error)
	Countdown(remaining string)
}

// TransferObserver receives progress snapshots from a running transfer and
// tells it whether it should stop.
type TransferObserver interface {
	Progress(snapshot string)
	Canceled() bool
}

// Uploader sends a local file to the hosting service and returns its public URL
type Uploader interface {
	UploadFile(ctx context.Context, localPath string, observer TransferObserver) (string, error)
}

// Fetcher materializes a remote file into dir and returns its local path
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, dir string, observer TransferObserver) (string, error)
}

// AttachmentFetcher materializes a replied-to attachment into dir
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, attachment *Attachment, dir string, observer TransferObserver) (string, error)
}

// StatusMessage is the caller-facing message a transfer reports through.
// OnCancel registers fn to run when the caller cancels; the returned func
// removes the registration.
type StatusMessage interface {
	Edit(ctx context.Context, text string) error
	Err(ctx context.Context, text string) error
	OnCancel(fn func()) (unregister func())
}

// Executor runs fn off the calling goroutine
type Executor interface {
	Submit(fn func()) error
}

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}

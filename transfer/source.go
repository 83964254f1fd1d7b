package transfer

import (
	"context"
	"errors"

	"uptofetch/internal"
	"uptofetch/utils"
)

// Request describes what to upload. A replied-to attachment takes precedence
// over Input; otherwise Input is a URL or a local path, optionally followed
// by "| newName".
type Request struct {
	Input      string
	Attachment *internal.Attachment
}

// source is a resolved local file ready for upload
type source struct {
	path      string
	temporary bool
}

// resolveSource materializes the upload source. Attachments and URLs are
// fetched into the work directory and marked temporary; anything else is
// taken as a caller-owned local path.
func (o *Orchestrator) resolveSource(ctx context.Context, job *Job, req Request, directive utils.RenameDirective) (source, error) {
	switch {
	case req.Attachment != nil:
		if o.opts.Attachments == nil {
			return source{}, errors.New("attachments are not supported here")
		}
		path, err := o.opts.Attachments.FetchAttachment(ctx, req.Attachment, o.opts.WorkDir, job)
		return source{path: path, temporary: true}, err

	case utils.IsURL(directive.Path):
		if o.opts.Fetcher == nil {
			return source{}, errors.New("no fetcher configured for URL sources")
		}
		path, err := o.opts.Fetcher.Fetch(ctx, directive.Path, o.opts.WorkDir, job)
		return source{path: path, temporary: true}, err

	default:
		return source{path: directive.Path}, nil
	}
}

// isCancellation reports whether err means the caller stopped the work
func isCancellation(err error) bool {
	return internal.IsType(err, internal.ErrCanceled) ||
		errors.Is(err, context.Canceled)
}

package uptobox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"uptofetch/internal"
	"uptofetch/utils"
)

type uploadTargetData struct {
	UploadLink string `json:"uploadLink"`
}

type uploadResponse struct {
	Files []struct {
		Name  string `json:"name"`
		Size  int64  `json:"size"`
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"files"`
}

// UploadTarget asks the service for a fresh upload URL. Targets are single
// use and never cached.
func (c *Client) UploadTarget(ctx context.Context) (string, error) {
	if err := c.requireToken(); err != nil {
		return "", err
	}

	var data uploadTargetData
	if _, err := c.call(ctx, "upload", url.Values{"token": {c.token}}, &data, false); err != nil {
		return "", err
	}
	if data.UploadLink == "" {
		return "", internal.NewRemoteUnavailableError("upload response has no upload link", nil)
	}

	target, err := utils.ResolveReference(c.apiURL.String(), data.UploadLink)
	if err != nil {
		return "", internal.NewRemoteUnavailableError("invalid upload link", err)
	}
	return target, nil
}

// UploadFile streams localPath to a fresh upload target and returns the
// public URL of the uploaded file. observer receives progress snapshots and
// can stop the transfer.
func (c *Client) UploadFile(ctx context.Context, localPath string, observer internal.TransferObserver) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", internal.NewLocalFileError(localPath, "failed to open file", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", internal.NewLocalFileError(localPath, "failed to stat file", err)
	}
	if info.IsDir() {
		return "", internal.NewLocalFileError(localPath, "path is a directory", nil)
	}

	target, err := c.UploadTarget(ctx)
	if err != nil {
		return "", err
	}

	name := filepath.Base(localPath)
	log := c.logger.WithField("file", name)
	log.Info("Uploading %s (%s)", name, utils.SizeLabel(info.Size()))

	tracker := utils.NewProgressTracker("Uploading "+name, info.Size())
	body := utils.NewProgressReader(ctx, file, tracker, observer, c.limiter)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	writeErr := make(chan error, 1)

	go func() {
		err := writeMultipart(mw, name, body)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	resp, err := c.stream.PostWithContext(ctx, target, mw.FormDataContentType(), pr)
	pr.Close()
	werr := <-writeErr
	if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		if err == nil {
			resp.Body.Close()
		}
		return "", streamError(localPath, werr)
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", internal.NewRemoteUnavailableError("failed to read upload response", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", internal.NewRemoteUnavailableError("malformed upload response", err)
	}
	if len(result.Files) == 0 {
		return "", internal.NewRemoteUnavailableError("upload response has no files", nil)
	}
	if result.Files[0].URL == "" {
		message := "upload response has no url"
		if result.Files[0].Error != "" {
			message = result.Files[0].Error
		}
		return "", internal.NewRemoteUnavailableError(message, nil)
	}

	summary := tracker.Finish()
	log.Info("Uploaded %s in %v", utils.SizeLabel(summary.TotalBytes), summary.TotalTime.Round(time.Millisecond))

	return result.Files[0].URL, nil
}

func writeMultipart(mw *multipart.Writer, name string, body io.Reader) error {
	part, err := mw.CreateFormFile("files", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// streamError keeps typed errors from the progress reader and wraps the rest
// as local read failures.
func streamError(localPath string, err error) error {
	var ue *internal.UptoboxError
	if errors.As(err, &ue) {
		return ue
	}
	return internal.NewLocalFileError(localPath, "failed to read file", err)
}

package uptobox

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"uptofetch/internal"
	"uptofetch/utils"
)

type userData struct {
	Premium *int `json:"premium"`
}

type linkInfoData struct {
	List []struct {
		FileCode string          `json:"file_code"`
		FileName string          `json:"file_name"`
		FileSize int64           `json:"file_size"`
		Error    json.RawMessage `json:"error"`
	} `json:"list"`
}

type filesData struct {
	Files *[]internal.SearchResult `json:"files"`
}

type linkData struct {
	DlLink       string `json:"dlLink"`
	Waiting      *int   `json:"waiting"`
	WaitingToken string `json:"waiting_token"`
}

// CheckAccessTier reads the account tier. It is queried on every call.
func (c *Client) CheckAccessTier(ctx context.Context) (internal.AccessTier, error) {
	if err := c.requireToken(); err != nil {
		return internal.TierStandard, err
	}

	var data userData
	if _, err := c.call(ctx, "user/me", url.Values{"token": {c.token}}, &data, false); err != nil {
		return internal.TierStandard, err
	}
	if data.Premium == nil {
		return internal.TierStandard, internal.NewRemoteUnavailableError("account status has no premium flag", nil)
	}

	if *data.Premium == 1 {
		return internal.TierElevated, nil
	}
	return internal.TierStandard, nil
}

// FileMetadata returns the name and size of the file behind code
func (c *Client) FileMetadata(ctx context.Context, code internal.ShareCode) (*internal.FileInfo, error) {
	fileCode, err := utils.NormalizeShareCode(code)
	if err != nil {
		return nil, err
	}

	var data linkInfoData
	if _, err := c.call(ctx, "link/info", url.Values{"fileCodes": {fileCode}}, &data, false); err != nil {
		return nil, err
	}
	if len(data.List) == 0 {
		return nil, internal.NewNotFoundError(fileCode)
	}

	entry := data.List[0]
	if len(entry.Error) > 0 && string(entry.Error) != "null" {
		c.logger.WithField("code", fileCode).Debug("link/info entry error: %s", string(entry.Error))
		return nil, internal.NewNotFoundError(fileCode)
	}
	if entry.FileName == "" {
		return nil, internal.NewRemoteUnavailableError("file info has no file name", nil)
	}
	if entry.FileCode == "" {
		entry.FileCode = fileCode
	}

	return &internal.FileInfo{
		Code:      entry.FileCode,
		Name:      entry.FileName,
		Size:      entry.FileSize,
		SizeLabel: utils.SizeLabel(entry.FileSize),
	}, nil
}

// Search lists files of the account under path whose name matches query, in
// the order the service returns them.
func (c *Client) Search(ctx context.Context, path string, limit int, query string) ([]internal.SearchResult, error) {
	if limit <= 0 {
		return nil, internal.NewValidationErrorWithValue("limit", "limit must be positive", limit)
	}
	if err := c.requireToken(); err != nil {
		return nil, err
	}

	params := url.Values{
		"token":       {c.token},
		"path":        {path},
		"limit":       {strconv.Itoa(limit)},
		"searchField": {"file_name"},
		"search":      {query},
	}

	var data filesData
	if _, err := c.call(ctx, "user/files", params, &data, false); err != nil {
		return nil, err
	}
	if data.Files == nil {
		return nil, internal.NewRemoteUnavailableError("file listing has no files", nil)
	}

	results := make([]internal.SearchResult, 0, len(*data.Files))
	results = append(results, *data.Files...)
	return results, nil
}

// RequestLink asks for a download link once. An empty waitingToken requests
// a fresh link; a non-empty one redeems a previous Pending grant. The request
// is never retried because the waiting token is single use.
func (c *Client) RequestLink(ctx context.Context, fileCode, waitingToken string) (internal.LinkGrant, error) {
	if err := c.requireToken(); err != nil {
		return internal.LinkGrant{}, err
	}

	params := url.Values{
		"token":     {c.token},
		"file_code": {fileCode},
	}
	if waitingToken != "" {
		params.Set("waiting_token", waitingToken)
	}

	var data linkData
	if _, err := c.call(ctx, "link", params, &data, true); err != nil {
		return internal.LinkGrant{}, err
	}

	switch {
	case data.DlLink != "":
		return internal.LinkGrant{URL: data.DlLink}, nil
	case data.Waiting != nil && data.WaitingToken != "":
		return internal.LinkGrant{WaitSeconds: *data.Waiting, Token: data.WaitingToken}, nil
	default:
		return internal.LinkGrant{}, internal.NewRemoteUnavailableError("link response has neither a link nor a waiting token", nil)
	}
}

// ResolveDownloadLink returns a direct download link for code. Premium
// accounts get it at once. Free accounts that are asked to wait go through
// handler: a declined wait ends with UserAborted, an accepted one is counted
// down and redeemed with exactly one continuation request.
func (c *Client) ResolveDownloadLink(ctx context.Context, code internal.ShareCode, handler internal.WaitHandler) (string, error) {
	fileCode, err := utils.NormalizeShareCode(code)
	if err != nil {
		return "", err
	}
	log := c.logger.WithField("code", fileCode)

	tier, err := c.CheckAccessTier(ctx)
	if err != nil {
		return "", err
	}
	log.Debug("Account tier: %s", tier)

	grant, err := c.RequestLink(ctx, fileCode, "")
	if err != nil {
		return "", err
	}

	if tier == internal.TierElevated {
		if !grant.IsReady() {
			return "", internal.NewRemoteUnavailableError("premium account was asked to wait", nil)
		}
		return grant.URL, nil
	}

	if grant.IsReady() {
		return grant.URL, nil
	}

	log.Info("You have to wait %d seconds to generate a new link", grant.WaitSeconds)
	accepted, err := handler.ConfirmWait(ctx, grant.WaitSeconds)
	if err != nil {
		return "", err
	}
	if !accepted {
		return "", internal.NewUserAbortedError(grant.WaitSeconds)
	}

	if err := c.countdown(ctx, grant.WaitSeconds, handler); err != nil {
		return "", err
	}

	next, err := c.RequestLink(ctx, fileCode, grant.Token)
	if err != nil {
		return "", err
	}
	if !next.IsReady() {
		return "", internal.NewRemoteUnavailableError("service asked to wait again after the waiting period", nil).
			WithContext("wait_seconds", next.WaitSeconds)
	}

	return next.URL, nil
}

// countdown blocks for waitSeconds whole seconds, publishing the remaining
// time before each second and "00:00" at the end.
func (c *Client) countdown(ctx context.Context, waitSeconds int, handler internal.WaitHandler) error {
	for remaining := waitSeconds; remaining > 0; remaining-- {
		handler.Countdown(utils.FormatCountdown(remaining))
		if err := c.sleep(ctx, time.Second); err != nil {
			return internal.NewCanceledError("").WithCause(err)
		}
	}
	handler.Countdown(utils.FormatCountdown(0))
	return nil
}

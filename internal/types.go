package internal

import "time"

// ShareCode identifies a file hosted on Uptobox. It may hold a bare code or a
// full share URL until it is normalized.
type ShareCode string

// AccessTier is the account level, read live from the service on every call
type AccessTier int

const (
	TierStandard AccessTier = iota
	TierElevated
)

// String returns the string representation of the tier
func (t AccessTier) String() string {
	if t == TierElevated {
		return "premium"
	}
	return "free"
}

// LinkGrant is the answer to a link request: either a ready download URL or a
// wait window plus a single-use continuation token.
type LinkGrant struct {
	URL         string
	WaitSeconds int
	Token       string
}

// IsReady reports whether the grant carries a download URL
func (g LinkGrant) IsReady() bool {
	return g.URL != ""
}

// IsPending reports whether the grant must be redeemed after waiting
func (g LinkGrant) IsPending() bool {
	return g.URL == "" && g.Token != ""
}

// Wait returns the wait window as a duration
func (g LinkGrant) Wait() time.Duration {
	return time.Duration(g.WaitSeconds) * time.Second
}

// FileInfo contains information about a hosted file
type FileInfo struct {
	Code      string `json:"file_code"`
	Name      string `json:"file_name"`
	Size      int64  `json:"file_size"`
	SizeLabel string `json:"-"`
}

// SearchResult is one entry of an account file listing
type SearchResult struct {
	Name string `json:"file_name"`
	Size int64  `json:"file_size"`
	Code string `json:"file_code"`
}

// Attachment is a file attached to the message a command replied to
type Attachment struct {
	ID       string
	FileName string
	Size     int64
}

package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"uptofetch/internal"
)

var (
	// Share URL: https://uptobox.com/abc123[/name][?query]
	shareURLPattern = regexp.MustCompile(`^https?://(?:www\.)?uptobox\.com/(?P<code>[a-zA-Z0-9]+)(?:[/?#].*)?$`)
	bareCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// NormalizeShareCode reduces a share URL or bare code to the bare code
func NormalizeShareCode(code internal.ShareCode) (string, error) {
	raw := strings.TrimSpace(string(code))
	if raw == "" {
		return "", internal.NewInvalidCodeError(raw)
	}

	if matches := shareURLPattern.FindStringSubmatch(raw); matches != nil {
		return matches[shareURLPattern.SubexpIndex("code")], nil
	}

	if bareCodePattern.MatchString(raw) {
		return raw, nil
	}

	return "", internal.NewInvalidCodeError(raw)
}

// ShareURL builds the canonical share URL for a bare code
func ShareURL(code string) string {
	return fmt.Sprintf("https://uptobox.com/%s", code)
}

// IsURL reports whether input is a URL the fetchers can materialize
func IsURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "s3":
		return true
	default:
		return false
	}
}

// ResolveReference resolves a possibly protocol-relative or relative link
// against base, the way the upload endpoint hands back "//host/upload?..."
func ResolveReference(base, link string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", link, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

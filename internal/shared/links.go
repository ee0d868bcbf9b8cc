package shared

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Source names for the platforms a link can come from.
const (
	SourceYouTube   = "YouTube"
	SourceTikTok    = "TikTok"
	SourceInstagram = "Instagram"
	SourceTwitter   = "Twitter"
	SourceWeb       = "Web"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractSource returns the platform name for a shared link.
func ExtractSource(link string) string {
	host := link
	if u, err := url.Parse(link); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)

	switch {
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return SourceYouTube
	case strings.Contains(host, "tiktok.com"):
		return SourceTikTok
	case strings.Contains(host, "instagram.com"):
		return SourceInstagram
	case strings.Contains(host, "twitter.com"), host == "x.com", strings.HasSuffix(host, ".x.com"):
		return SourceTwitter
	default:
		return SourceWeb
	}
}

// ExtractSharedURL finds the first http(s) link in share-target parameters.
//
// Apps put the link in different fields (Instagram uses text, Chrome uses url), so
// each is searched in order. Returns "" when no link is present.
func ExtractSharedURL(params ...string) string {
	for _, p := range params {
		if m := urlPattern.FindString(p); m != "" {
			return m
		}
	}
	return ""
}

// ValidateURL checks that s is an absolute http or https URL.
func ValidateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	return nil
}

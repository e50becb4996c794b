// Package classify decides which capture strategy a URL needs.
package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind is the capture strategy for a URL.
type Kind int

// Kinds returned by Classify.
const (
	KindGeneric Kind = iota
	KindGitHubRepo
	KindYouTubeVideo
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindGitHubRepo:
		return "github"
	case KindYouTubeVideo:
		return "youtube"
	default:
		return "generic"
	}
}

var (
	githubRepoPattern = regexp.MustCompile(`^https://github\.com/[a-zA-Z0-9-]+/[a-zA-Z0-9-]+/?$`)
	videoIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// Classify returns the capture strategy for rawURL.
func Classify(rawURL string) Kind {
	if YouTubeID(rawURL) != "" {
		return KindYouTubeVideo
	}
	if IsGitHubRepo(rawURL) {
		return KindGitHubRepo
	}
	return KindGeneric
}

// IsGitHubRepo reports whether rawURL points at a repository root on github.com.
func IsGitHubRepo(rawURL string) bool {
	return githubRepoPattern.MatchString(rawURL)
}

// YouTubeID pulls the 11-char video ID from any YouTube URL format, or returns "".
func YouTubeID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = firstSegment(u.Path)
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		candidate = youtubePathID(u)
	default:
		return ""
	}
	if videoIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

func youtubePathID(u *url.URL) string {
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return ""
	}
	switch segments[0] {
	case "embed", "v", "shorts", "live", "e":
		return segments[1]
	}
	return ""
}

func firstSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

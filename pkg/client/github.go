package client

import (
	"net/http"
	"os"
	"runtime"
	"strings"
)

// Defaults applied by DefaultConfig.
const (
	// DefaultAPIURL is the base URL of the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"

	// DefaultAPIVersion is the value sent in the X-GitHub-Api-Version header.
	DefaultAPIVersion = "2022-11-28"

	// DefaultAccept is the media type sent in the Accept header.
	DefaultAccept = "application/vnd.github+json"
)

// EnvAPIURL is the environment variable consulted by GitHubAPIURL when no
// base URL is configured explicitly.
const EnvAPIURL = "GITHUB_API_URL"

// Version is the library version reported in the default User-Agent.
const Version = "0.1.0"

// GitHubAPIURL returns the base API URL from the GITHUB_API_URL environment
// variable, falling back to DefaultAPIURL when the variable is unset or
// empty. GitHub Actions sets GITHUB_API_URL on GitHub Enterprise runners.
func GitHubAPIURL() string {
	if u := os.Getenv(EnvAPIURL); u != "" {
		return u
	}
	return DefaultAPIURL
}

// MakeUserAgent assembles a User-Agent string of the form
// "name/version (url) go/1.xx". An empty url omits the parenthesized part.
func MakeUserAgent(name, version, url string) string {
	s := name + "/" + version
	if url != "" {
		s += " (" + url + ")"
	}
	return s + " go/" + strings.TrimPrefix(runtime.Version(), "go")
}

// defaultUserAgent identifies this library when the caller does not supply
// a User-Agent of their own.
func defaultUserAgent() string {
	return MakeUserAgent("ghreq", Version, "https://github.com/jwodder/ghreq")
}

// joinURL resolves path against base. Absolute http(s) URLs are used
// verbatim; anything else is appended to base with exactly one separating
// slash.
func joinURL(base, path string) string {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// isMutating reports whether method is subject to the mutation throttle.
// GitHub asks clients to wait at least one second between requests that
// modify state to avoid tripping secondary rate limits.
func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

package util

import (
	"net/url"
	"path"
)

// ResolveURLPath resolves a path or absolute URL against a base URL.
// If pathOrURL is already an absolute URL (has a scheme like http://), it is
// returned as-is. Otherwise it is joined with the base URL's path,
// preserving any path prefix in the base URL.
//
// path.Join is used rather than url.ResolveReference, which treats paths
// starting with "/" as absolute references per RFC 3986 and would drop the
// base prefix.
func ResolveURLPath(baseURL, pathOrURL string) string {
	if baseURL == "" {
		return pathOrURL
	}
	if pathOrURL == "" {
		return baseURL
	}

	if parsed, err := url.Parse(pathOrURL); err == nil && parsed.IsAbs() {
		return pathOrURL
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return pathOrURL
	}

	base.Path = path.Join(base.Path, pathOrURL)
	return base.String()
}

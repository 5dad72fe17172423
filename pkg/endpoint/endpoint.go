// Package endpoint resolves the base URL that the document API client
// prefixes to every request path.
//
// The base URL comes from the OCR_API_BASE_URL environment variable when it
// is set to a non-empty value. Otherwise it defaults to the root-relative
// path "/api", which targets the same origin through a reverse proxy:
//
//	OCR_API_BASE_URL=http://10.0.0.5:8010/api  ->  http://10.0.0.5:8010/api
//	OCR_API_BASE_URL unset or empty            ->  /api
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	// EnvVar is the environment variable that overrides the base URL.
	EnvVar = "OCR_API_BASE_URL"

	// Default is the same-origin base URL used when EnvVar is absent.
	Default BaseURL = "/api"
)

// ErrNoOrigin is returned by Absolute when a root-relative base URL is
// resolved without an origin to anchor it.
var ErrNoOrigin = errors.New("root-relative base URL requires an origin")

// LookupFunc reports the value of a named environment variable.
// os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// BaseURL is either an absolute URL (scheme://host[:port][/prefix]) or a
// root-relative path such as "/api".
type BaseURL string

// Resolve computes the base URL from lookup. It performs no I/O beyond the
// single lookup and never fails: absence of configuration yields Default.
func Resolve(lookup LookupFunc) BaseURL {
	if lookup == nil {
		return Default
	}
	// Only absence or the empty string selects Default; any other value,
	// whitespace included, is used as given.
	v, ok := lookup(EnvVar)
	if !ok || v == "" {
		return Default
	}
	return BaseURL(v)
}

// FromEnv resolves the base URL from the process environment.
func FromEnv() BaseURL {
	return Resolve(os.LookupEnv)
}

// String returns the base URL as given.
func (b BaseURL) String() string { return string(b) }

// IsAbsolute reports whether b carries its own scheme and host.
func (b BaseURL) IsAbsolute() bool {
	u, err := url.Parse(string(b))
	return err == nil && u.Scheme != "" && u.Host != ""
}

// IsRootRelative reports whether b is a path rooted at "/" with no host.
func (b BaseURL) IsRootRelative() bool {
	return strings.HasPrefix(string(b), "/") && !strings.HasPrefix(string(b), "//")
}

// Join appends a request path to b without doubling or dropping the slash
// between them. The trailing slash of path is preserved.
func (b BaseURL) Join(path string) string {
	base := strings.TrimRight(string(b), "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// Absolute anchors b to origin when b is root-relative, the way a browser
// resolves a relative URL against the page it was loaded from. Absolute
// base URLs are returned unchanged and origin is ignored.
func (b BaseURL) Absolute(origin string) (BaseURL, error) {
	if b.IsAbsolute() {
		return b, nil
	}
	if !b.IsRootRelative() {
		return "", fmt.Errorf("base URL %q is neither absolute nor root-relative", string(b))
	}
	if origin == "" {
		return "", ErrNoOrigin
	}

	o, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if o.Scheme == "" || o.Host == "" {
		return "", fmt.Errorf("origin %q must include scheme and host", origin)
	}
	return BaseURL(o.Scheme + "://" + o.Host + string(b)), nil
}

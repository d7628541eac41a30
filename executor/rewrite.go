// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"
	"net/url"
	"strings"
)

// Rewriter points requests at the cluster. The scheme and authority of
// every request are replaced by the cluster base; path and query are
// kept verbatim, escaping included.
type Rewriter struct {
	base string
}

// NewRewriter validates base and returns a Rewriter for it. base must
// be an absolute http or https URL with a host and nothing after the
// authority except an optional trailing slash.
func NewRewriter(base string) (*Rewriter, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing cluster base URL %q: %w", base, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("cluster base URL %q: scheme must be http or https", base)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("cluster base URL %q: missing host", base)
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("cluster base URL %q: userinfo is not allowed", base)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return nil, fmt.Errorf("cluster base URL %q: must not have a path", base)
	}
	if parsed.RawQuery != "" || parsed.ForceQuery || parsed.Fragment != "" {
		return nil, fmt.Errorf("cluster base URL %q: must not have a query or fragment", base)
	}
	return &Rewriter{base: parsed.Scheme + "://" + parsed.Host}, nil
}

// Base returns the scheme and authority requests are sent to.
func (r *Rewriter) Base() string {
	return r.base
}

// Rewrite returns the cluster URL for the original request URI. Any
// failure is an *Error of kind KindURIConstruction.
func (r *Rewriter) Rewrite(uri string) (*url.URL, error) {
	pathAndQuery, err := PathAndQuery(uri)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(r.base + pathAndQuery)
	if err != nil {
		return nil, &Error{Kind: KindURIConstruction, Err: err}
	}
	return target, nil
}

// PathAndQuery extracts the origin-form target ("/path?query") from a
// request URI. An origin-form URI is returned as is, less any fragment,
// so a leading "//" stays part of the path. An empty path becomes "/".
func PathAndQuery(uri string) (string, error) {
	if uri == "" {
		return "", newError(KindURIConstruction, "empty request URI")
	}
	if strings.HasPrefix(uri, "/") {
		pathAndQuery, _, _ := strings.Cut(uri, "#")
		if _, err := url.ParseRequestURI(pathAndQuery); err != nil {
			return "", &Error{Kind: KindURIConstruction, Err: err}
		}
		return pathAndQuery, nil
	}

	source, err := url.Parse(uri)
	if err != nil {
		return "", &Error{Kind: KindURIConstruction, Err: err}
	}
	if source.Opaque != "" {
		return "", newError(KindURIConstruction, "request URI %q has no path", uri)
	}

	path := source.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "", newError(KindURIConstruction, "request URI %q is not origin-form or absolute", uri)
	}
	if source.RawQuery != "" || source.ForceQuery {
		path += "?" + source.RawQuery
	}
	return path, nil
}

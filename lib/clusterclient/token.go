// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clusterclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// tokenFile caches a bearer token read from disk, reloading it when
// the file's modification time or size changes.
type tokenFile struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	token   string
	modTime time.Time
	size    int64
}

func newTokenFile(path string, logger *slog.Logger) *tokenFile {
	return &tokenFile{path: path, logger: logger}
}

// Token returns the current token. If the file cannot be read after a
// token has been loaded, the cached token is returned and the error is
// logged, so a brief gap during rotation does not fail requests.
func (f *tokenFile) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return f.stale(fmt.Errorf("reading bearer token: %w", err))
	}
	if f.token != "" && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.token, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return f.stale(fmt.Errorf("reading bearer token: %w", err))
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return f.stale(fmt.Errorf("bearer token file %s is empty", f.path))
	}

	if f.token != "" && token != f.token {
		f.logger.Info("bearer token reloaded", "path", f.path)
	}
	f.token = token
	f.modTime = info.ModTime()
	f.size = info.Size()
	return token, nil
}

func (f *tokenFile) stale(err error) (string, error) {
	if f.token == "" {
		return "", err
	}
	f.logger.Warn("using cached bearer token", "path", f.path, "error", err)
	return f.token, nil
}

// bearerTransport sets Authorization on requests that lack one.
type bearerTransport struct {
	next   http.RoundTripper
	tokens *tokenFile
}

func (t *bearerTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if request.Header.Get("Authorization") != "" {
		return t.next.RoundTrip(request)
	}
	token, err := t.tokens.Token()
	if err != nil {
		if request.Body != nil {
			request.Body.Close()
		}
		return nil, err
	}
	// RoundTrippers must not modify the caller's request.
	clone := request.Clone(request.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(clone)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Reasons carried by an unsuccessful FetchResult.
const (
	ReasonNoInternet       = "no internet connection"
	ReasonAlreadyLatest    = "already on latest version"
	ReasonAssetsNotFound   = "required assets not found in release"
	ReasonInsufficientDisk = "insufficient disk space"
)

const (
	// DefaultConnectivityTimeout bounds the connectivity pre-check.
	DefaultConnectivityTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds waiting for response headers and any
	// single gap between body reads.
	DefaultRequestTimeout = 30 * time.Second
)

var (
	// ErrDownloadFailed wraps any transport failure while downloading an asset.
	ErrDownloadFailed = errors.New("download failed")

	errStalled = errors.New("no data received within request timeout")
)

// FetchResult is the outcome of a fetch that did not hit a transport error.
//
// Unsuccessful results are ordinary answers ("already on latest version"),
// not failures; how to react is the caller's decision.
type FetchResult struct {
	Success bool   `json:"success"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ProgressFunc receives byte-level download progress. total is the
// Content-Length, or -1 when the server did not send one.
type ProgressFunc func(asset string, received, total int64)

// Fetcher downloads the latest image archives.
type Fetcher interface {
	// FetchLatest fetches the newest release unless it matches currentVersion.
	FetchLatest(ctx context.Context, currentVersion string, progress ProgressFunc) (FetchResult, error)
}

// FetcherConfig configures DefaultFetcher.
type FetcherConfig struct {
	// APIBaseURL is the release API root. Default: DefaultAPIBaseURL
	APIBaseURL string

	// Owner and Repo identify the repository publishing the bundle.
	Owner string
	Repo  string

	// ConnectivityURL is probed before anything else. Default: APIBaseURL
	ConnectivityURL string

	// ConnectivityTimeout. Default: DefaultConnectivityTimeout
	ConnectivityTimeout time.Duration

	// RequestTimeout. Default: DefaultRequestTimeout
	RequestTimeout time.Duration

	// DestDir is where the archives are written.
	DestDir string

	// HTTPClient is used for every request. Default: a new http.Client
	HTTPClient *http.Client

	// FreeSpace reports free bytes at a path. Default: AvailableDiskSpace
	FreeSpace FreeSpaceFunc
}

// DefaultFetcher implements Fetcher against a GitHub-compatible release API.
//
// # Description
//
// One FetchLatest call runs these steps in order, stopping at the first
// negative outcome:
//
//  1. Connectivity GET (ReasonNoInternet)
//  2. Latest release lookup (error wrapping ErrReleaseLookup)
//  3. Version comparison (ReasonAlreadyLatest, zero downloads)
//  4. Asset matching for backend.tar and mariadb.tar (ReasonAssetsNotFound)
//  5. Disk space check (ReasonInsufficientDisk)
//  6. Sequential streaming download of both archives
//
// # Limitations
//
//   - No resume: a failed download leaves a partial file which the next
//     run overwrites from byte 0.
//   - No checksum verification; the release API does not publish digests.
//
// # Thread Safety
//
// Concurrent FetchLatest calls are serialized.
type DefaultFetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	release *ReleaseClient
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewDefaultFetcher creates a DefaultFetcher, filling config defaults.
func NewDefaultFetcher(cfg FetcherConfig, logger *slog.Logger) *DefaultFetcher {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.ConnectivityURL == "" {
		cfg.ConnectivityURL = cfg.APIBaseURL
	}
	if cfg.ConnectivityTimeout <= 0 {
		cfg.ConnectivityTimeout = DefaultConnectivityTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.FreeSpace == nil {
		cfg.FreeSpace = AvailableDiskSpace
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFetcher{
		cfg:     cfg,
		client:  client,
		release: &ReleaseClient{BaseURL: cfg.APIBaseURL, HTTP: client},
		logger:  logger,
	}
}

// FetchLatest implements Fetcher.
//
// # Inputs
//
//   - ctx: Cancels any in-flight request
//   - currentVersion: Version of the running app, with or without "v"
//   - progress: Optional byte progress callback
//
// # Outputs
//
//   - FetchResult: Success with the new version, or a Reason
//   - error: Release lookup or transport failure (ErrReleaseLookup, ErrDownloadFailed)
func (f *DefaultFetcher) FetchLatest(ctx context.Context, currentVersion string, progress ProgressFunc) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if progress == nil {
		progress = func(string, int64, int64) {}
	}

	checkCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectivityTimeout)
	err := checkConnectivity(checkCtx, f.client, f.cfg.ConnectivityURL)
	cancel()
	if err != nil {
		f.logger.Warn("connectivity check failed", "url", f.cfg.ConnectivityURL, "error", err)
		return FetchResult{Reason: ReasonNoInternet}, nil
	}

	rel, err := f.release.Latest(ctx, f.cfg.Owner, f.cfg.Repo)
	if err != nil {
		return FetchResult{}, err
	}

	if SameVersion(currentVersion, rel.TagName) {
		f.logger.Info("resource bundle already on latest version", "version", rel.TagName)
		return FetchResult{Version: rel.TagName, Reason: ReasonAlreadyLatest}, nil
	}

	type plan struct {
		asset Asset
		dest  string
	}
	var plans []plan
	var required int64
	for _, name := range []string{BackendArchiveName, DatabaseArchiveName} {
		a, ok := FindAsset(rel.Assets, name)
		if !ok {
			f.logger.Warn("release is missing an asset", "tag", rel.TagName, "asset", name)
			return FetchResult{Version: rel.TagName, Reason: ReasonAssetsNotFound}, nil
		}
		plans = append(plans, plan{asset: a, dest: filepath.Join(f.cfg.DestDir, name)})
		required += a.Size
	}

	if err := checkDiskSpace(f.cfg.DestDir, required, f.cfg.FreeSpace); err != nil {
		var ce *CheckError
		if errors.As(err, &ce) && ce.Type == CheckErrorDiskSpaceLow {
			f.logger.Warn("not enough disk space for resource bundle", "detail", ce.FullError())
			return FetchResult{Version: rel.TagName, Reason: ReasonInsufficientDisk}, nil
		}
		f.logger.Warn("disk space check inconclusive", "error", err)
	}

	if err := os.MkdirAll(f.cfg.DestDir, 0o755); err != nil {
		return FetchResult{}, fmt.Errorf("create resource directory: %w", err)
	}

	for _, p := range plans {
		f.logger.Info("downloading asset", "asset", p.asset.Name, "dest", p.dest, "size", p.asset.Size)
		if err := f.download(ctx, p.asset, p.dest, progress); err != nil {
			return FetchResult{}, err
		}
	}

	return FetchResult{Success: true, Version: rel.TagName}, nil
}

// download streams one asset to dest.
//
// A watchdog cancels the request when no headers or body bytes arrive
// within RequestTimeout. The destination is truncated on open, so a retry
// always starts from zero.
func (f *DefaultFetcher) download(ctx context.Context, a Asset, dest string, progress ProgressFunc) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watchdog := time.AfterFunc(f.cfg.RequestTimeout, func() { cancel(errStalled) })
	defer watchdog.Stop()

	fail := func(err error) error {
		if cause := context.Cause(ctx); errors.Is(cause, errStalled) {
			err = cause
		}
		return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, a.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BrowserDownloadURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", "trackhounds")

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	total := resp.ContentLength
	var received int64
	progress(a.Name, 0, total)

	buf := make([]byte, 32*1024)
	for {
		watchdog.Reset(f.cfg.RequestTimeout)
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write %s: %w", dest, werr)
			}
			received += int64(n)
			progress(a.Name, received, total)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(rerr)
		}
	}

	if total > 0 && received < total {
		return fail(io.ErrUnexpectedEOF)
	}
	return out.Close()
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockFetcher is a test double for Fetcher.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, currentVersion string, progress ProgressFunc) (FetchResult, error)

	Calls int
	mu    sync.Mutex
}

// FetchLatest implements Fetcher.
func (m *MockFetcher) FetchLatest(ctx context.Context, currentVersion string, progress ProgressFunc) (FetchResult, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, currentVersion, progress)
	}
	return FetchResult{Reason: ReasonAlreadyLatest}, nil
}

// CallCount returns the number of FetchLatest calls.
func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// Compile-time interface satisfaction checks
var (
	_ Fetcher = (*DefaultFetcher)(nil)
	_ Fetcher = (*MockFetcher)(nil)
)

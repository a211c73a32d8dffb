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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Verifier Tests
// =============================================================================

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestVerifier_Check(t *testing.T) {
	base := t.TempDir()
	v := NewVerifier(base)
	assert.Equal(t, filepath.Join(base, DirName), v.Dir())

	b := v.Check()
	assert.False(t, b.Complete())
	assert.Equal(t, []string{ComposeFileName, BackendArchiveName, DatabaseArchiveName}, b.Missing())

	writeFile(t, b.ComposeFile, 10)
	writeFile(t, b.BackendArchive, 10)
	b = v.Check()
	assert.False(t, b.Complete())
	assert.Equal(t, []string{DatabaseArchiveName}, b.Missing())

	writeFile(t, b.DatabaseArchive, 10)
	b = v.Check()
	assert.True(t, b.Complete())
	assert.Empty(t, b.Missing())
}

func TestVerifier_DirectoryIsNotAFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, DirName, BackendArchiveName), 0o755))
	assert.False(t, NewVerifier(base).Check().HasBackend)
}

func TestResolveBase(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	dev, err := ResolveBase(false, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, wd, dev)

	dir := t.TempDir()
	packaged, err := ResolveBase(true, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, packaged)

	exeRelative, err := ResolveBase(true, "")
	require.NoError(t, err)
	assert.Equal(t, "resources", filepath.Base(exeRelative))
}

// =============================================================================
// Release Tests
// =============================================================================

func TestFindAsset(t *testing.T) {
	tests := []struct {
		name   string
		assets []string
		file   string
		want   string
		found  bool
	}{
		{"exact", []string{"other.tar", "backend.tar"}, "backend.tar", "backend.tar", true},
		{"exact wins over substring", []string{"old-backend.tar", "backend.tar"}, "backend.tar", "backend.tar", true},
		{"substring", []string{"trackhounds-backend.tar.part"}, "backend.tar", "trackhounds-backend.tar.part", true},
		{"versioned stem", []string{"mariadb-10.11.tar"}, "mariadb.tar", "mariadb-10.11.tar", true},
		{"stem needs tar suffix", []string{"mariadb-10.11.zip"}, "mariadb.tar", "", false},
		{"absent", []string{"frontend.tar"}, "backend.tar", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var assets []Asset
			for _, n := range tt.assets {
				assets = append(assets, Asset{Name: n})
			}
			got, ok := FindAsset(assets, tt.file)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestSameVersion(t *testing.T) {
	assert.True(t, SameVersion("1.4.0", "v1.4.0"))
	assert.True(t, SameVersion("v1.4", "1.4.0"))
	assert.False(t, SameVersion("1.4.0", "1.4.1"))
	assert.True(t, SameVersion("nightly", "nightly"))
	assert.False(t, SameVersion("nightly", "v1.0.0"))
}

func TestIsNewer(t *testing.T) {
	assert.True(t, IsNewer("v1.5.0", "1.4.9"))
	assert.False(t, IsNewer("v1.4.0", "1.4.0"))
	assert.False(t, IsNewer("v1.3.0", "1.4.0"))
	assert.False(t, IsNewer("latest", "1.4.0"))
}

func TestReleaseClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := (&ReleaseClient{BaseURL: srv.URL}).Latest(context.Background(), "o", "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReleaseLookup))
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestReleaseClient_RejectsMalformedTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Release{TagName: "../../etc/passwd"})
	}))
	defer srv.Close()

	_, err := (&ReleaseClient{BaseURL: srv.URL}).Latest(context.Background(), "o", "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReleaseLookup))
}

// =============================================================================
// Fetcher Tests
// =============================================================================

// releaseServer serves a release API and asset downloads.
type releaseServer struct {
	*httptest.Server
	tag           string
	assetNames    []string
	size          int
	downloads     atomic.Int32
	failAfter     int // if > 0, the backend download drops after this many bytes
	failRemaining atomic.Int32
}

func newReleaseServer(t *testing.T, tag string, size int, assets ...string) *releaseServer {
	t.Helper()
	rs := &releaseServer{tag: tag, assetNames: assets, size: size}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/bundle/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		rel := Release{TagName: rs.tag}
		for _, n := range rs.assetNames {
			rel.Assets = append(rel.Assets, Asset{
				Name:               n,
				BrowserDownloadURL: rs.URL + "/download/" + n,
				Size:               int64(rs.size),
			})
		}
		_ = json.NewEncoder(w).Encode(rel)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		rs.downloads.Add(1)
		name := strings.TrimPrefix(r.URL.Path, "/download/")
		if rs.failAfter > 0 && strings.Contains(name, "backend") && rs.failRemaining.Load() > 0 {
			rs.failRemaining.Add(-1)
			dropAfter(t, w, rs.size, rs.failAfter)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(rs.size))
		_, _ = w.Write(make([]byte, rs.size))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

// dropAfter announces size bytes, sends only sent of them, then closes
// the connection.
func dropAfter(t *testing.T, w http.ResponseWriter, size, sent int) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, buf, err := hj.Hijack()
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\nContent-Type: application/octet-stream\r\n\r\n", size)
	_, _ = buf.Write(make([]byte, sent))
	_ = buf.Flush()
}

func newTestFetcher(rs *releaseServer, dest string) *DefaultFetcher {
	return NewDefaultFetcher(FetcherConfig{
		APIBaseURL:     rs.URL,
		Owner:          "acme",
		Repo:           "bundle",
		DestDir:        dest,
		RequestTimeout: 2 * time.Second,
		FreeSpace:      func(string) (int64, error) { return 1 << 40, nil },
	}, nil)
}

func TestFetchLatest_Success(t *testing.T) {
	rs := newReleaseServer(t, "v1.5.0", 4096, "backend.tar", "mariadb.tar", "notes.txt")
	dest := filepath.Join(t.TempDir(), DirName)
	f := newTestFetcher(rs, dest)

	var mu sync.Mutex
	last := map[string]int64{}
	res, err := f.FetchLatest(context.Background(), "1.4.0", func(asset string, received, total int64) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, int64(4096), total)
		assert.GreaterOrEqual(t, received, last[asset])
		last[asset] = received
	})
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Success: true, Version: "v1.5.0"}, res)
	assert.Equal(t, int32(2), rs.downloads.Load())
	assert.Equal(t, int64(4096), last["backend.tar"])
	assert.Equal(t, int64(4096), last["mariadb.tar"])

	b := NewVerifier(filepath.Dir(dest)).Check()
	assert.True(t, b.HasBackend)
	assert.True(t, b.HasDatabase)
}

func TestFetchLatest_SameVersionDownloadsNothing(t *testing.T) {
	for _, current := range []string{"1.5.0", "v1.5.0"} {
		t.Run(current, func(t *testing.T) {
			rs := newReleaseServer(t, "v1.5.0", 16, "backend.tar", "mariadb.tar")
			f := newTestFetcher(rs, t.TempDir())

			res, err := f.FetchLatest(context.Background(), current, nil)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, ReasonAlreadyLatest, res.Reason)
			assert.Equal(t, int32(0), rs.downloads.Load())
		})
	}
}

func TestFetchLatest_AssetsNotFound(t *testing.T) {
	rs := newReleaseServer(t, "v2.0.0", 16, "backend.tar")
	f := newTestFetcher(rs, t.TempDir())

	res, err := f.FetchLatest(context.Background(), "1.0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonAssetsNotFound, res.Reason)
	assert.Equal(t, int32(0), rs.downloads.Load())
}

func TestFetchLatest_NoInternet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewDefaultFetcher(FetcherConfig{APIBaseURL: url, Owner: "acme", Repo: "bundle", DestDir: t.TempDir()}, nil)
	res, err := f.FetchLatest(context.Background(), "1.0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Reason: ReasonNoInternet}, res)
}

func TestFetchLatest_InsufficientDisk(t *testing.T) {
	rs := newReleaseServer(t, "v2.0.0", 1<<20, "backend.tar", "mariadb.tar")
	f := newTestFetcher(rs, t.TempDir())
	f.cfg.FreeSpace = func(string) (int64, error) { return 1 << 10, nil }

	res, err := f.FetchLatest(context.Background(), "1.0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientDisk, res.Reason)
	assert.Equal(t, int32(0), rs.downloads.Load())
}

func TestFetchLatest_ConnectionDropRestartsFromZero(t *testing.T) {
	rs := newReleaseServer(t, "v2.0.0", 1000, "backend.tar", "mariadb.tar")
	rs.failAfter = 570
	rs.failRemaining.Store(1)
	dest := t.TempDir()
	f := newTestFetcher(rs, dest)

	var maxPct int64
	_, err := f.FetchLatest(context.Background(), "1.0.0", func(asset string, received, total int64) {
		if asset == "backend.tar" && total > 0 {
			maxPct = received * 100 / total
		}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.Equal(t, int64(57), maxPct)

	// The partial file stays on disk.
	info, statErr := os.Stat(filepath.Join(dest, BackendArchiveName))
	require.NoError(t, statErr)
	assert.Equal(t, int64(570), info.Size())

	// The next run starts the backend archive from zero.
	var first int64 = -1
	res, err := f.FetchLatest(context.Background(), "1.0.0", func(asset string, received, total int64) {
		if asset == "backend.tar" && first < 0 {
			first = received
		}
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(0), first)

	info, statErr = os.Stat(filepath.Join(dest, BackendArchiveName))
	require.NoError(t, statErr)
	assert.Equal(t, int64(1000), info.Size())
}

func TestFetchLatest_StalledDownload(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/repos/acme/bundle/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Release{TagName: "v2.0.0", Assets: []Asset{
			{Name: "backend.tar", BrowserDownloadURL: srvURL + "/slow"},
			{Name: "mariadb.tar", BrowserDownloadURL: srvURL + "/slow"},
		}})
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	f := NewDefaultFetcher(FetcherConfig{
		APIBaseURL: srv.URL, Owner: "acme", Repo: "bundle", DestDir: t.TempDir(),
		RequestTimeout: 50 * time.Millisecond,
	}, nil)

	_, err := f.FetchLatest(context.Background(), "1.0.0", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.True(t, errors.Is(err, errStalled))
}

// =============================================================================
// Check Tests
// =============================================================================

func TestCheckDiskSpace(t *testing.T) {
	plenty := func(string) (int64, error) { return 10 << 30, nil }
	scarce := func(string) (int64, error) { return 1 << 20, nil }
	unknown := func(string) (int64, error) { return 0, errors.New("statfs: not supported") }

	assert.NoError(t, checkDiskSpace("/x", 0, scarce))
	assert.NoError(t, checkDiskSpace("/x", 1<<30, plenty))
	assert.NoError(t, checkDiskSpace("/x", 1<<30, unknown))

	err := checkDiskSpace("/x", 1<<30, scarce)
	var ce *CheckError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CheckErrorDiskSpaceLow, ce.Type)
	assert.Contains(t, ce.FullError(), "To fix:")
}

func TestAvailableDiskSpace_WalksUpToExistingDir(t *testing.T) {
	free, err := AvailableDiskSpace(filepath.Join(t.TempDir(), "not", "yet", "created"))
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))
}

func TestCheckErrorType_String(t *testing.T) {
	assert.Equal(t, "NETWORK_TIMEOUT", CheckErrorNetworkTimeout.String())
	assert.Equal(t, "UNKNOWN", CheckErrorType(99).String())
}

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
	"io"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/trackhounds/pkg/validation"
)

// DefaultAPIBaseURL is the release API root.
const DefaultAPIBaseURL = "https://api.github.com"

// ErrReleaseLookup is returned when the latest release cannot be read.
var ErrReleaseLookup = errors.New("release lookup failed")

// Release is the subset of the release API payload the supervisor reads.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ReleaseClient reads the latest release of a repository.
type ReleaseClient struct {
	BaseURL string
	HTTP    *http.Client
}

// Latest fetches GET {BaseURL}/repos/{owner}/{repo}/releases/latest.
//
// # Outputs
//
//   - *Release: Decoded release
//   - error: Wraps ErrReleaseLookup on transport, status, decode or tag failure
func (c *ReleaseClient) Latest(ctx context.Context, owner, repo string) (*Release, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultAPIBaseURL
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(base, "/"), owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "trackhounds")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrReleaseLookup, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrReleaseLookup, err)
	}
	tag, err := validation.SanitizeReleaseTag(rel.TagName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	rel.TagName = tag
	return &rel, nil
}

// FindAsset locates an asset by file name.
//
// # Description
//
// Tries, in order: an exact name match, a name containing fileName, then a
// name containing the stem of fileName and ending in ".tar". The last form
// accepts versioned names such as "backend-1.4.0.tar".
//
// # Outputs
//
//   - Asset: The first match
//   - bool: false when nothing matches
func FindAsset(assets []Asset, fileName string) (Asset, bool) {
	for _, a := range assets {
		if a.Name == fileName {
			return a, true
		}
	}
	for _, a := range assets {
		if strings.Contains(a.Name, fileName) {
			return a, true
		}
	}
	stem := strings.TrimSuffix(fileName, ".tar")
	for _, a := range assets {
		if strings.Contains(a.Name, stem) && strings.HasSuffix(a.Name, ".tar") {
			return a, true
		}
	}
	return Asset{}, false
}

// canonical returns v as a "v"-prefixed semantic version when it parses as
// one, else the trimmed input.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	sv := "v" + strings.TrimPrefix(v, "v")
	if semver.IsValid(sv) {
		return semver.Canonical(sv)
	}
	return v
}

// SameVersion reports whether a and b name the same release. A leading "v"
// is ignored and "1.2" equals "1.2.0".
func SameVersion(a, b string) bool {
	return canonical(a) == canonical(b)
}

// IsNewer reports whether latest is a strictly greater semantic version
// than current. Unparseable versions are never newer.
func IsNewer(latest, current string) bool {
	l, c := canonical(latest), canonical(current)
	if !semver.IsValid(l) || !semver.IsValid(c) {
		return false
	}
	return semver.Compare(l, c) > 0
}

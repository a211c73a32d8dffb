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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// CheckErrorType categorizes pre-download check failures.
type CheckErrorType int

const (
	// CheckErrorNetworkUnavailable indicates no internet connectivity.
	CheckErrorNetworkUnavailable CheckErrorType = iota

	// CheckErrorNetworkTimeout indicates the connectivity probe timed out.
	CheckErrorNetworkTimeout

	// CheckErrorDiskSpaceLow indicates the destination cannot hold the assets.
	CheckErrorDiskSpaceLow

	// CheckErrorPermissionDenied indicates the destination cannot be inspected.
	CheckErrorPermissionDenied
)

// String returns the error type as a string for logging.
func (t CheckErrorType) String() string {
	switch t {
	case CheckErrorNetworkUnavailable:
		return "NETWORK_UNAVAILABLE"
	case CheckErrorNetworkTimeout:
		return "NETWORK_TIMEOUT"
	case CheckErrorDiskSpaceLow:
		return "DISK_SPACE_LOW"
	case CheckErrorPermissionDenied:
		return "PERMISSION_DENIED"
	default:
		return "UNKNOWN"
	}
}

// CheckError provides structured information about a failed check.
type CheckError struct {
	Type        CheckErrorType
	Message     string
	Detail      string
	Remediation string
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	return e.Message
}

// FullError returns the message with detail and remediation.
func (e *CheckError) FullError() string {
	var buf bytes.Buffer
	buf.WriteString(e.Message)
	if e.Detail != "" {
		buf.WriteString("\n\nDetails: ")
		buf.WriteString(e.Detail)
	}
	if e.Remediation != "" {
		buf.WriteString("\n\nTo fix:\n")
		buf.WriteString(e.Remediation)
	}
	return buf.String()
}

// -----------------------------------------------------------------------------
// Network Connectivity
// -----------------------------------------------------------------------------

// checkConnectivity issues one GET against url. Any HTTP response, whatever
// the status, proves connectivity.
func checkConnectivity(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	resp.Body.Close()
	return nil
}

func classifyNetworkError(err error) *CheckError {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if os.IsTimeout(err) || strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return &CheckError{
			Type:        CheckErrorNetworkTimeout,
			Message:     "Network check timed out",
			Detail:      errStr,
			Remediation: "Check your internet connection and restart the application.",
		}
	}
	return &CheckError{
		Type:        CheckErrorNetworkUnavailable,
		Message:     "Cannot reach the release server",
		Detail:      errStr,
		Remediation: "Connect to the internet, or check that a firewall or proxy is not blocking access.",
	}
}

// -----------------------------------------------------------------------------
// Disk Space
// -----------------------------------------------------------------------------

// FreeSpaceFunc reports the bytes available to an unprivileged user on the
// filesystem holding path.
type FreeSpaceFunc func(path string) (int64, error)

// AvailableDiskSpace walks up from path to the nearest existing directory
// and reports its filesystem's free space.
func AvailableDiskSpace(path string) (int64, error) {
	checkPath := path
	for {
		if _, err := os.Stat(checkPath); err == nil {
			break
		}
		parent := filepath.Dir(checkPath)
		if parent == checkPath {
			home, err := os.UserHomeDir()
			if err != nil {
				return 0, fmt.Errorf("no existing ancestor of %s: %w", path, err)
			}
			checkPath = home
			break
		}
		checkPath = parent
	}
	return freeBytes(checkPath)
}

// checkDiskSpace fails when required exceeds the space free at dir.
func checkDiskSpace(dir string, required int64, free FreeSpaceFunc) error {
	if required <= 0 {
		return nil
	}
	available, err := free(dir)
	if err != nil {
		if os.IsPermission(err) {
			return &CheckError{
				Type:        CheckErrorPermissionDenied,
				Message:     "Cannot check disk space: permission denied",
				Detail:      err.Error(),
				Remediation: fmt.Sprintf("Check permissions on %s", dir),
			}
		}
		// Unknown free space is not a reason to refuse the download.
		return nil
	}
	if available < required {
		return &CheckError{
			Type: CheckErrorDiskSpaceLow,
			Message: fmt.Sprintf("Insufficient disk space: need %s, have %s",
				ux.FormatBytes(required), ux.FormatBytes(available)),
			Detail:      fmt.Sprintf("Resource directory: %s", dir),
			Remediation: fmt.Sprintf("Free up at least %s and try again.", ux.FormatBytes(required-available)),
		}
	}
	return nil
}

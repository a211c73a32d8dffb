// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that end up in subprocess
// arguments, container environment or file names.
//
// Values read from the config file or from a release API response are
// passed to docker and compose as argv entries and written next to the
// resource bundle. Validating them up front keeps option injection
// ("--privileged"), shell metacharacters and path separators out of
// those calls.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// imageRefPattern is a loose docker reference: optional registry and
	// path components, an optional tag and an optional digest.
	imageRefPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-/:]*(@sha256:[a-f0-9]{64})?$`)

	// databaseNamePattern keeps MariaDB names to unquoted identifiers.
	databaseNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

	// releaseTagPattern allows "v1.2.3", "1.2.3-rc.1" and plain words like "nightly".
	releaseTagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-+]{0,127}$`)
)

// ValidateImageRef validates a container image reference.
//
// # Description
//
// Accepts the forms compose and `docker load` produce, for example
// "mariadb:11", "trackhounds/backend:latest" and
// "registry.local:5000/team/app@sha256:<64 hex>". Uppercase letters,
// whitespace and a leading "-" are rejected.
//
// # Inputs
//
//   - ref: Image reference as written in the config file
//
// # Outputs
//
//   - error: Non-nil when ref is empty or malformed
//
// # Example
//
//	if err := validation.ValidateImageRef(cfg.BackendImage); err != nil {
//	    return fmt.Errorf("backend image: %w", err)
//	}
func ValidateImageRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("image reference cannot be empty")
	}
	if len(ref) > 255 {
		return fmt.Errorf("image reference too long: %d chars (max 255)", len(ref))
	}
	if !imageRefPattern.MatchString(ref) {
		return fmt.Errorf("invalid image reference: %q", ref)
	}
	if strings.Contains(ref, "//") || strings.HasSuffix(ref, ":") || strings.HasSuffix(ref, "/") {
		return fmt.Errorf("invalid image reference: %q", ref)
	}
	return nil
}

// ValidateDatabaseName validates a database name passed to the
// database container's environment.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name: %q (letters, digits and underscores, max 64)", name)
	}
	return nil
}

// ValidateReleaseTag validates a tag returned by a release API.
//
// The tag is recorded as the installed bundle version and shown to the
// user, so path separators, whitespace and control characters are
// rejected.
func ValidateReleaseTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("release tag cannot be empty")
	}
	if !releaseTagPattern.MatchString(tag) || strings.Contains(tag, "..") {
		return fmt.Errorf("invalid release tag: %q", tag)
	}
	return nil
}

// SanitizeReleaseTag trims surrounding whitespace and validates the result.
//
//	tag, err := validation.SanitizeReleaseTag(rel.TagName)
//	if err != nil {
//	    return err
//	}
func SanitizeReleaseTag(tag string) (string, error) {
	trimmed := strings.TrimSpace(tag)
	if err := ValidateReleaseTag(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

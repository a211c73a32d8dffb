// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resources locates the on-disk resource bundle and fetches it from
// the release artifact store when it is missing or outdated.
//
// The bundle is three files under {base}/docker-resources:
//
//	docker-compose.yml   compose descriptor
//	backend.tar          backend image archive
//	mariadb.tar          database image archive
//
// The Verifier only looks; the Fetcher is the only writer.
package resources

import (
	"fmt"
	"os"
	"path/filepath"
)

// Fixed bundle layout.
const (
	DirName             = "docker-resources"
	ComposeFileName     = "docker-compose.yml"
	BackendArchiveName  = "backend.tar"
	DatabaseArchiveName = "mariadb.tar"
)

// =============================================================================
// Bundle
// =============================================================================

// Bundle is the resolved resource bundle and which of its files exist.
type Bundle struct {
	Dir             string
	ComposeFile     string
	BackendArchive  string
	DatabaseArchive string

	HasCompose  bool
	HasBackend  bool
	HasDatabase bool
}

// Complete reports whether all three files are present.
func (b Bundle) Complete() bool {
	return b.HasCompose && b.HasBackend && b.HasDatabase
}

// Missing lists the file names that are absent, in layout order.
func (b Bundle) Missing() []string {
	var out []string
	if !b.HasCompose {
		out = append(out, ComposeFileName)
	}
	if !b.HasBackend {
		out = append(out, BackendArchiveName)
	}
	if !b.HasDatabase {
		out = append(out, DatabaseArchiveName)
	}
	return out
}

// =============================================================================
// Verifier
// =============================================================================

// Verifier checks the bundle directory. It never writes.
type Verifier struct {
	dir string
}

// NewVerifier creates a Verifier for {base}/docker-resources.
func NewVerifier(base string) *Verifier {
	return &Verifier{dir: filepath.Join(base, DirName)}
}

// Dir returns the bundle directory.
func (v *Verifier) Dir() string {
	return v.dir
}

// Check stats the three bundle files.
//
// A path that exists but is a directory counts as missing.
func (v *Verifier) Check() Bundle {
	b := Bundle{
		Dir:             v.dir,
		ComposeFile:     filepath.Join(v.dir, ComposeFileName),
		BackendArchive:  filepath.Join(v.dir, BackendArchiveName),
		DatabaseArchive: filepath.Join(v.dir, DatabaseArchiveName),
	}
	b.HasCompose = isFile(b.ComposeFile)
	b.HasBackend = isFile(b.BackendArchive)
	b.HasDatabase = isFile(b.DatabaseArchive)
	return b
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveBase returns the directory the bundle lives under.
//
// # Description
//
// In development mode the base is the working directory. In packaged mode
// it is resourcesDir when set, else "resources" next to the executable.
//
// # Outputs
//
//   - string: Absolute base directory
//   - error: If the working directory or executable path cannot be read
func ResolveBase(packaged bool, resourcesDir string) (string, error) {
	if !packaged {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return wd, nil
	}
	if resourcesDir != "" {
		return filepath.Abs(resourcesDir)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "resources"), nil
}

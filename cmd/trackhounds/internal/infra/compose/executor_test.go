// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
)

func writeDescriptor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte("services: {}\n"), 0644))
	return path
}

func TestVariant(t *testing.T) {
	assert.Equal(t, "docker compose", VariantModern.String())
	assert.Equal(t, "docker-compose", VariantLegacy.String())
	assert.Equal(t, VariantLegacy, VariantModern.Other())
	assert.Equal(t, VariantModern, VariantLegacy.Other())
	assert.Equal(t, "modern", VariantModern.Label())
	assert.Equal(t, "legacy", VariantLegacy.Label())
}

func TestDetectVariant(t *testing.T) {
	tests := []struct {
		name   string
		result *process.Result
		err    error
		want   Variant
	}{
		{"plugin present", &process.Result{ExitCode: 0}, nil, VariantModern},
		{"plugin exits non-zero", &process.Result{ExitCode: 1}, nil, VariantLegacy},
		{"docker missing", &process.Result{ExitCode: -1}, process.ErrCommandNotFound, VariantLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := &process.MockManager{
				RunFunc: func(ctx context.Context, name string, args ...string) (*process.Result, error) {
					return tt.result, tt.err
				},
			}
			e := NewDefaultExecutor(Config{ComposeFile: "x"}, pm, nil)

			assert.Equal(t, tt.want, e.DetectVariant(context.Background()))
			assert.Equal(t, []string{"docker compose version"}, pm.CommandLines())
		})
	}
}

func TestUp_CommandLines(t *testing.T) {
	file := writeDescriptor(t)

	tests := []struct {
		variant Variant
		want    string
	}{
		{VariantModern, "docker compose -f " + file + " up -d --no-build"},
		{VariantLegacy, "docker-compose -f " + file + " up -d --no-build"},
	}
	for _, tt := range tests {
		t.Run(tt.variant.Label(), func(t *testing.T) {
			pm := &process.MockManager{}
			e := NewDefaultExecutor(Config{ComposeFile: file}, pm, nil)

			res, err := e.Up(context.Background(), tt.variant)
			require.NoError(t, err)
			assert.True(t, res.Success)

			calls := pm.GetCalls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].CommandLine())
			assert.Equal(t, filepath.Dir(file), calls[0].Dir)
		})
	}
}

func TestUp_NonZeroExit(t *testing.T) {
	file := writeDescriptor(t)
	pm := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (*process.Result, error) {
			return &process.Result{ExitCode: 1, Stderr: "Conflict. The container name is already in use"}, nil
		},
	}
	e := NewDefaultExecutor(Config{ComposeFile: file}, pm, nil)

	res, err := e.Up(context.Background(), VariantModern)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrComposeFailed))
	assert.Contains(t, err.Error(), "already in use")
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ExitCode)
}

func TestUp_ProcessError(t *testing.T) {
	file := writeDescriptor(t)
	pm := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (*process.Result, error) {
			return &process.Result{ExitCode: -1}, process.ErrCommandNotFound
		},
	}
	e := NewDefaultExecutor(Config{ComposeFile: file}, pm, nil)

	res, err := e.Up(context.Background(), VariantLegacy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, process.ErrCommandNotFound))
	assert.False(t, res.Success)
}

func TestRunCompose_MissingDescriptor(t *testing.T) {
	pm := &process.MockManager{}
	e := NewDefaultExecutor(Config{ComposeFile: filepath.Join(t.TempDir(), "nope.yml")}, pm, nil)

	_, err := e.Down(context.Background(), VariantModern)
	assert.True(t, errors.Is(err, ErrComposeFileMissing))
	assert.Empty(t, pm.GetCalls(), "no process should be spawned")
	assert.False(t, e.FileExists())
}

func TestRunCompose_AppliesTimeout(t *testing.T) {
	file := writeDescriptor(t)
	var deadline time.Time
	pm := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (*process.Result, error) {
			deadline, _ = ctx.Deadline()
			return &process.Result{}, nil
		},
	}
	e := NewDefaultExecutor(Config{ComposeFile: file, DefaultTimeout: time.Minute}, pm, nil)

	_, err := e.Down(context.Background(), VariantModern)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestMockExecutor_RecordsVariants(t *testing.T) {
	m := &MockExecutor{
		UpFunc: func(ctx context.Context, v Variant) (*Result, error) {
			return &Result{}, ErrComposeFailed
		},
	}
	_, _ = m.Up(context.Background(), VariantModern)
	_, _ = m.Up(context.Background(), VariantLegacy)
	_, _ = m.Down(context.Background(), VariantLegacy)

	assert.Equal(t, []Variant{VariantModern, VariantLegacy}, m.UpCalls)
	assert.Equal(t, []Variant{VariantLegacy}, m.DownCalls)
	assert.True(t, m.FileExists())
}

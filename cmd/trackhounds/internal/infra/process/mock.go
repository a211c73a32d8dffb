// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure the mock by setting function fields before use. A nil RunFunc
// answers every command with exit code 0 and empty output; a nil StartFunc
// returns PID 1. RunInDir delegates to RunFunc when RunInDirFunc is nil.
//
// # Example
//
//	mock := &MockManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) (*Result, error) {
//	        if name == "docker" && args[0] == "info" {
//	            return &Result{ExitCode: 1}, nil
//	        }
//	        return &Result{}, nil
//	    },
//	}
type MockManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) (*Result, error)

	// RunInDirFunc is called when RunInDir is invoked
	RunInDirFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (*Result, error)

	// StartFunc is called when Start is invoked
	StartFunc func(ctx context.Context, name string, args ...string) (int, error)

	// Calls records all method invocations for verification
	Calls []Call

	mu sync.Mutex
}

// Call records a single method invocation.
type Call struct {
	Method string
	Dir    string
	Env    []string
	Name   string
	Args   []string
}

// CommandLine returns "name arg1 arg2 ...".
func (c Call) CommandLine() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	m.record(Call{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		return &Result{}, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// RunInDir delegates to RunInDirFunc (or RunFunc) and records the call.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (*Result, error) {
	m.record(Call{Method: "RunInDir", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(ctx, dir, env, name, args...)
	}
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return &Result{}, nil
}

// Start delegates to StartFunc and records the call.
func (m *MockManager) Start(ctx context.Context, name string, args ...string) (int, error) {
	m.record(Call{Method: "Start", Name: name, Args: args})
	if m.StartFunc == nil {
		return 1, nil
	}
	return m.StartFunc(ctx, name, args...)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// CommandLines returns the recorded calls rendered as command lines.
func (m *MockManager) CommandLines() []string {
	calls := m.GetCalls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.CommandLine()
	}
	return out
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// Script is a RunFunc that answers commands by prefix.
//
// Keys are matched against "name arg1 arg2 ..." with strings.HasPrefix,
// longest key first. Unmatched commands fail with exit code 127.
//
//	mock := &MockManager{RunFunc: Script(map[string]*Result{
//	    "docker info": {ExitCode: 0},
//	    "docker ps":   {Stdout: "trackhounds-backend\n"},
//	})}
func Script(answers map[string]*Result) func(ctx context.Context, name string, args ...string) (*Result, error) {
	return func(ctx context.Context, name string, args ...string) (*Result, error) {
		line := Call{Name: name, Args: args}.CommandLine()
		best := ""
		for key := range answers {
			if strings.HasPrefix(line, key) && len(key) > len(best) {
				best = key
			}
		}
		if best == "" {
			return &Result{ExitCode: 127, Stderr: fmt.Sprintf("unscripted command: %s", line)}, nil
		}
		res := *answers[best]
		return &res, nil
	}
}

// Compile-time interface satisfaction check
var _ Manager = (*MockManager)(nil)

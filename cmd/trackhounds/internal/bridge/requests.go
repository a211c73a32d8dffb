// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
)

// Request types accepted from the UI.
const (
	RequestCheckDocker     = "check-docker"
	RequestUpdateBackend   = "update-backend"
	RequestCheckUpdates    = "check-updates"
	RequestOpenExternalURL = "open-external-url"
)

// Response types sent to the UI.
const (
	ResponseDockerStatus = "docker-status"
	ResponseUpdateResult = "backend-update-result"
	ResponseError        = "error"
)

var (
	// ErrUnknownRequest is returned for an unrecognised request type.
	ErrUnknownRequest = errors.New("unknown request type")

	// ErrRateLimited is returned when update-backend is requested too often.
	ErrRateLimited = errors.New("update requested too often")
)

// externalURL is the allow-list for open-external-url.
var externalURL = regexp.MustCompile(`^(https?://|mailto:)`)

// Request is one UI request.
type Request struct {
	Type string `json:"type" binding:"required"`
	URL  string `json:"url,omitempty"`
}

// Response is the reply to a Request. Fire-and-forget requests have none.
type Response struct {
	Type   string                 `json:"type"`
	Status *status.ServiceStatus  `json:"status,omitempty"`
	Result *resources.FetchResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Backend is what the bridge needs from the supervisor.
type Backend interface {
	Status() status.ServiceStatus
	CheckDocker(ctx context.Context) status.ServiceStatus
	UpdateBackend(ctx context.Context) resources.FetchResult
}

// Handle answers one request.
//
// # Description
//
// check-docker and update-backend block until answered. check-updates
// starts the updater in the background. open-external-url opens an
// allowed URL with the OS handler and silently ignores any other.
//
// # Outputs
//
//   - *Response: nil for fire-and-forget requests
//   - error: ErrUnknownRequest or ErrRateLimited
func (s *Server) Handle(ctx context.Context, req Request) (*Response, error) {
	switch req.Type {
	case RequestCheckDocker:
		st := s.backend.CheckDocker(ctx)
		return &Response{Type: ResponseDockerStatus, Status: &st}, nil

	case RequestUpdateBackend:
		if !s.limiter.Allow() {
			return nil, ErrRateLimited
		}
		res := s.backend.UpdateBackend(ctx)
		return &Response{Type: ResponseUpdateResult, Result: &res}, nil

	case RequestCheckUpdates:
		if s.updater != nil {
			bg := context.WithoutCancel(ctx)
			util.SafeGo(func() {
				if _, err := s.updater.CheckNow(bg); err != nil {
					s.logger.Debug("update check failed", "error", err)
				}
			}, util.LogPanic(s.logger, "update check"))
		}
		return nil, nil

	case RequestOpenExternalURL:
		if !externalURL.MatchString(req.URL) {
			s.logger.Debug("ignoring external url", "url", req.URL)
			return nil, nil
		}
		if err := s.opener.Open(ctx, req.URL); err != nil {
			s.logger.Warn("failed to open external url", "url", req.URL, "error", err)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

// =============================================================================
// URL opener
// =============================================================================

// URLOpener opens a URL in the user's default handler.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// OSOpener opens URLs with the platform's launch verb.
type OSOpener struct {
	Proc process.Manager
	GOOS string
}

// Open implements URLOpener.
func (o OSOpener) Open(ctx context.Context, url string) error {
	name, args := openCommand(o.GOOS, url)
	if _, err := o.Proc.Start(ctx, name, args...); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func openCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// LogOpener only logs. Used when no desktop is attached.
type LogOpener struct {
	Logger *slog.Logger
}

// Open implements URLOpener.
func (o LogOpener) Open(ctx context.Context, url string) error {
	o.Logger.Info("open external url", "url", url)
	return nil
}

// Compile-time interface satisfaction checks
var (
	_ URLOpener = OSOpener{}
	_ URLOpener = LogOpener{}
)

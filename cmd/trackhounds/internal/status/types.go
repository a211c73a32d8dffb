// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status owns the supervisor's single ServiceStatus and the
// outbound event stream the UI subscribes to.
//
// All state lives in a Store; every mutation ends in a publish of a full
// snapshot onto the Bus. The Bus never blocks a publisher: each subscriber
// has a small buffer and loses its oldest undelivered event when full, so
// receivers see last-write-wins semantics.
//
//	Prober / Launcher / Starter / Poller
//	           │ (mutate)
//	           ▼
//	      ┌─────────┐  publish()  ┌─────┐  Event  ┌──────────────┐
//	      │  Store  │────────────▶│ Bus │────────▶│ subscribers  │
//	      └─────────┘             └─────┘         └──────────────┘
package status

// =============================================================================
// Service Status
// =============================================================================

// ContainerState is the last-polled state of one named container.
type ContainerState struct {
	Running bool `json:"running"`
}

// Containers groups the two fixed containers.
type Containers struct {
	Backend  ContainerState `json:"backend"`
	Database ContainerState `json:"database"`
}

// ServiceStatus is the process-wide supervisor status.
//
// Checking is true only while the initial startup chain runs. Running is
// true once the runtime daemon has been confirmed reachable. Containers
// reflects the most recent poll only.
type ServiceStatus struct {
	Checking   bool       `json:"checking"`
	Running    bool       `json:"running"`
	Containers Containers `json:"containers"`
}

// =============================================================================
// Setup Progress
// =============================================================================

// Stage names a phase of the startup chain as shown to the UI.
type Stage string

const (
	StageDownloadingResources Stage = "downloading-resources"
	StageLoadingImages        Stage = "loading-images"
	StageStartingContainers   Stage = "starting-containers"
	StageComplete             Stage = "complete"
	StageError                Stage = "error"
)

// SetupProgress is an ephemeral progress report. Progress is 0-100 and
// restarts with each stage.
type SetupProgress struct {
	Stage    Stage  `json:"stage"`
	Detail   string `json:"detail"`
	Progress int    `json:"progress"`
}

// =============================================================================
// Events
// =============================================================================

// Channel names an outbound push channel.
type Channel string

const (
	ChannelDockerStatus  Channel = "docker-status"
	ChannelSetupProgress Channel = "setup-progress"
	ChannelNavigation    Channel = "app-navigation"
	ChannelDialog        Channel = "dialog"
)

// Event is one message on the outbound stream.
//
// Data is a ServiceStatus, SetupProgress, Navigation or Dialog depending on
// Channel.
type Event struct {
	Channel Channel `json:"channel"`
	Data    any     `json:"data"`
}

// Navigation is a routing hint for the UI.
type Navigation struct {
	Route string `json:"route"`
}

// Severity of a user-visible dialog.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Dialog is a user-visible notice pushed to the UI.
type Dialog struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

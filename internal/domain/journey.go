// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceComplete InstanceStatus = "complete"
	InstanceAbandoned InstanceStatus = "abandoned"
)

type SceneStatus string

const (
	SceneLocked    SceneStatus = "locked"
	SceneAvailable SceneStatus = "available"
	SceneCompleted SceneStatus = "completed"
)

// JourneyInstance is one user's live run through a journey template.
type JourneyInstance struct {
	ID                   uuid.UUID      `json:"id"`
	UserID               string         `json:"user_id"`
	TemplateID           string         `json:"template_id"`
	Status               InstanceStatus `json:"status"`
	CurrentSceneNumber   int            `json:"current_scene_number"`
	TotalScenes          int            `json:"total_scenes"`
	NextSceneAvailableAt time.Time      `json:"next_scene_available_at"`
	MinSceneGapHours     int            `json:"min_scene_gap_hours"`
	CadenceMode          string         `json:"cadence_mode,omitempty"`
	Source               string         `json:"source,omitempty"`
	OrganizationID       string         `json:"organization_id,omitempty"`
	StartedAt            time.Time      `json:"started_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

type StartJourneyParams struct {
	UserID           string
	TemplateID       string
	TotalScenes      int
	MinSceneGapHours int
	CadenceMode      string
	Source           string
	OrganizationID   string
}

type CompleteSceneParams struct {
	InstanceID     uuid.UUID
	SceneNumber    int
	UserID         string
	IdempotencyKey string

	// Strict promotes secondary-write failures (progress row, unlock,
	// completion event) to request failures. Off, they are logged and
	// counted only.
	Strict bool
}

// SceneAdvancement is the outcome of completing one scene: the instance
// moved forward by exactly one scene, or finished the journey.
type SceneAdvancement struct {
	NextSceneNumber      int       `json:"next_scene_number"`
	NextSceneAvailableAt time.Time `json:"next_scene_available_at"`
	JourneyComplete      bool      `json:"journey_complete"`
}

// InstanceProgress summarizes how far an instance has moved.
type InstanceProgress struct {
	InstanceID           uuid.UUID      `json:"instance_id"`
	Status               InstanceStatus `json:"status"`
	CurrentSceneNumber   int            `json:"current_scene_number"`
	TotalScenes          int            `json:"total_scenes"`
	CompletedScenes      int            `json:"completed_scenes"`
	ProgressPercent      int            `json:"progress_percent"`
	NextSceneAvailableAt time.Time      `json:"next_scene_available_at"`
	StartedAt            time.Time      `json:"started_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StateCheckin is one inner-compass reading: how activated and how focused
// the caller reports being, with free-form situational context.
type StateCheckin struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	ArousalLevel int       `json:"arousal_level"`
	FocusLevel   int       `json:"focus_level"`
	Context      string    `json:"context,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateStateCheckinParams struct {
	UserID         string
	ArousalLevel   int
	FocusLevel     int
	Context        string
	IdempotencyKey string
}

// PracticeCompletion records one finished therapeutic practice session.
type PracticeCompletion struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	PracticeID      string    `json:"practice_id"`
	DurationSeconds int       `json:"duration_seconds"`
	QualityRating   int       `json:"quality_rating"`
	CreatedAt       time.Time `json:"created_at"`
}

type CreatePracticeCompletionParams struct {
	UserID          string
	PracticeID      string
	DurationSeconds int
	QualityRating   int
	IdempotencyKey  string
}

// SceneEvent is one telemetry event emitted while a user plays a journey
// scene (started, paused, audio progress, completed, ...).
type SceneEvent struct {
	ID                uuid.UUID       `json:"id"`
	JourneyInstanceID uuid.UUID       `json:"journey_instance_id"`
	UserID            string          `json:"user_id"`
	SceneNumber       int             `json:"scene_number"`
	EventType         string          `json:"event_type"`
	EventData         json.RawMessage `json:"event_data,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type CreateSceneEventParams struct {
	JourneyInstanceID uuid.UUID
	UserID            string
	SceneNumber       int
	EventType         string
	EventData         json.RawMessage
	IdempotencyKey    string
}

// NavicueResponse captures the caller's answer to one navigation cue.
type NavicueResponse struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	NavicueID    string          `json:"navicue_id"`
	DecisionID   string          `json:"decision_id"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type CreateNavicueResponseParams struct {
	UserID         string
	NavicueID      string
	DecisionID     string
	ResponseData   json.RawMessage
	IdempotencyKey string
}

// SceneCapture is a user-authored note or recording attached to a scene.
type SceneCapture struct {
	ID                uuid.UUID `json:"id"`
	JourneyInstanceID uuid.UUID `json:"journey_instance_id"`
	SceneNumber       int       `json:"scene_number"`
	CaptureKind       string    `json:"capture_kind"`
	CaptureText       string    `json:"capture_text,omitempty"`
	StoragePath       string    `json:"capture_storage_path,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type CreateSceneCaptureParams struct {
	JourneyInstanceID uuid.UUID
	UserID            string
	SceneNumber       int
	CaptureKind       string
	CaptureText       string
	StoragePath       string
	IdempotencyKey    string
}

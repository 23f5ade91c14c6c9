// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recoverkit/ingest-gateway/internal/auth"
	"github.com/recoverkit/ingest-gateway/internal/domain"
	"github.com/recoverkit/ingest-gateway/internal/idempotency"
	"github.com/recoverkit/ingest-gateway/internal/notifier"
	"github.com/recoverkit/ingest-gateway/internal/task"
)

type EventWriter interface {
	InsertStateCheckin(ctx context.Context, params domain.CreateStateCheckinParams) (domain.StateCheckin, error)
	InsertPracticeCompletion(ctx context.Context, params domain.CreatePracticeCompletionParams) (domain.PracticeCompletion, error)
	InsertSceneEvent(ctx context.Context, params domain.CreateSceneEventParams) (domain.SceneEvent, error)
	InsertNavicueResponse(ctx context.Context, params domain.CreateNavicueResponseParams) (domain.NavicueResponse, error)
	InsertSceneCapture(ctx context.Context, params domain.CreateSceneCaptureParams) (domain.SceneCapture, error)
}

type JourneyStore interface {
	StartJourney(ctx context.Context, params domain.StartJourneyParams) (domain.JourneyInstance, bool, error)
	CompleteScene(ctx context.Context, params domain.CompleteSceneParams) (domain.SceneAdvancement, error)
	GetProgress(ctx context.Context, id uuid.UUID) (domain.InstanceProgress, error)
}

type AuditStore interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}

type Deps struct {
	EventRepo   EventWriter
	JourneyRepo JourneyStore
	AuditRepo   AuditStore
	Health      HealthChecker
	Resolver    auth.Resolver
	Cache       *idempotency.Cache
	Notifier    notifier.Notifier
	Tasks       *task.Runner
	Logger      *slog.Logger

	// StrictSecondaryWrites makes scene-advancement secondary writes fail
	// the request instead of degrading silently.
	StrictSecondaryWrites bool

	Version   string
	Commit    string
	BuildDate string
}

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recoverkit/ingest-gateway/internal/domain"
)

// EventRepository writes one immutable row per ingested user action. Rows
// are never updated or deleted by this service.
type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *EventRepository) InsertStateCheckin(ctx context.Context, params domain.CreateStateCheckinParams) (domain.StateCheckin, error) {
	rec := domain.StateCheckin{
		ID:           uuid.New(),
		UserID:       params.UserID,
		ArousalLevel: params.ArousalLevel,
		FocusLevel:   params.FocusLevel,
		Context:      params.Context,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO state_checkins (id, user_id, arousal_level, focus_level, context, idempotency_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at
	`,
		rec.ID,
		rec.UserID,
		rec.ArousalLevel,
		rec.FocusLevel,
		rec.Context,
		params.IdempotencyKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		r.logger.Error("insert state checkin failed", "user_id", params.UserID, "error", err)
		return domain.StateCheckin{}, err
	}

	return rec, nil
}

func (r *EventRepository) InsertPracticeCompletion(ctx context.Context, params domain.CreatePracticeCompletionParams) (domain.PracticeCompletion, error) {
	rec := domain.PracticeCompletion{
		ID:              uuid.New(),
		UserID:          params.UserID,
		PracticeID:      params.PracticeID,
		DurationSeconds: params.DurationSeconds,
		QualityRating:   params.QualityRating,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO practice_completions (id, user_id, practice_id, duration_seconds, quality_rating, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at
	`,
		rec.ID,
		rec.UserID,
		rec.PracticeID,
		rec.DurationSeconds,
		rec.QualityRating,
		params.IdempotencyKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		r.logger.Error("insert practice completion failed",
			"user_id", params.UserID,
			"practice_id", params.PracticeID,
			"error", err,
		)
		return domain.PracticeCompletion{}, err
	}

	return rec, nil
}

func (r *EventRepository) InsertSceneEvent(ctx context.Context, params domain.CreateSceneEventParams) (domain.SceneEvent, error) {
	rec := domain.SceneEvent{
		ID:                uuid.New(),
		JourneyInstanceID: params.JourneyInstanceID,
		UserID:            params.UserID,
		SceneNumber:       params.SceneNumber,
		EventType:         params.EventType,
		EventData:         params.EventData,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO scene_events (id, journey_instance_id, user_id, scene_number, event_type, event_data, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING created_at
	`,
		rec.ID,
		rec.JourneyInstanceID,
		rec.UserID,
		rec.SceneNumber,
		rec.EventType,
		rec.EventData,
		params.IdempotencyKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		r.logger.Error("insert scene event failed",
			"journey_instance_id", params.JourneyInstanceID,
			"event_type", params.EventType,
			"error", err,
		)
		return domain.SceneEvent{}, err
	}

	return rec, nil
}

func (r *EventRepository) InsertNavicueResponse(ctx context.Context, params domain.CreateNavicueResponseParams) (domain.NavicueResponse, error) {
	rec := domain.NavicueResponse{
		ID:           uuid.New(),
		UserID:       params.UserID,
		NavicueID:    params.NavicueID,
		DecisionID:   params.DecisionID,
		ResponseData: params.ResponseData,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO navicue_responses (id, user_id, navicue_id, decision_id, response_data, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at
	`,
		rec.ID,
		rec.UserID,
		rec.NavicueID,
		rec.DecisionID,
		rec.ResponseData,
		params.IdempotencyKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		r.logger.Error("insert navicue response failed",
			"user_id", params.UserID,
			"navicue_id", params.NavicueID,
			"error", err,
		)
		return domain.NavicueResponse{}, err
	}

	return rec, nil
}

func (r *EventRepository) InsertSceneCapture(ctx context.Context, params domain.CreateSceneCaptureParams) (domain.SceneCapture, error) {
	rec := domain.SceneCapture{
		ID:                uuid.New(),
		JourneyInstanceID: params.JourneyInstanceID,
		SceneNumber:       params.SceneNumber,
		CaptureKind:       params.CaptureKind,
		CaptureText:       params.CaptureText,
		StoragePath:       params.StoragePath,
	}
	if rec.CaptureKind == "" {
		rec.CaptureKind = "text"
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO scene_captures (id, journey_instance_id, user_id, scene_number, capture_kind, capture_text, capture_storage_path, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at
	`,
		rec.ID,
		rec.JourneyInstanceID,
		params.UserID,
		rec.SceneNumber,
		rec.CaptureKind,
		rec.CaptureText,
		rec.StoragePath,
		params.IdempotencyKey,
	).Scan(&rec.CreatedAt)
	if err != nil {
		r.logger.Error("insert scene capture failed",
			"journey_instance_id", params.JourneyInstanceID,
			"scene_number", params.SceneNumber,
			"error", err,
		)
		return domain.SceneCapture{}, err
	}

	return rec, nil
}

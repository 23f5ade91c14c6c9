// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recoverkit/ingest-gateway/internal/domain"
	"github.com/recoverkit/ingest-gateway/internal/metrics"
)

type JourneyRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewJourneyRepository(pool *pgxpool.Pool, logger *slog.Logger) *JourneyRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &JourneyRepository{
		pool:   pool,
		logger: logger,
	}
}

const instanceColumns = `
	id, user_id, template_id, status, current_scene_number, total_scenes,
	next_scene_available_at, min_scene_gap_hours,
	COALESCE(cadence_mode, ''), COALESCE(source, ''), COALESCE(organization_id, ''),
	started_at, updated_at
`

func scanInstance(row pgx.Row) (domain.JourneyInstance, error) {
	var inst domain.JourneyInstance
	err := row.Scan(
		&inst.ID,
		&inst.UserID,
		&inst.TemplateID,
		&inst.Status,
		&inst.CurrentSceneNumber,
		&inst.TotalScenes,
		&inst.NextSceneAvailableAt,
		&inst.MinSceneGapHours,
		&inst.CadenceMode,
		&inst.Source,
		&inst.OrganizationID,
		&inst.StartedAt,
		&inst.UpdatedAt,
	)
	return inst, err
}

// StartJourney creates a journey instance for (user, template), or returns
// the existing active one. existing=true means no new instance was created,
// which makes repeated start calls safe.
func (r *JourneyRepository) StartJourney(ctx context.Context, params domain.StartJourneyParams) (domain.JourneyInstance, bool, error) {
	inst, err := scanInstance(r.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM journey_instances
		WHERE user_id=$1 AND template_id=$2 AND status='active'
	`,
		params.UserID,
		params.TemplateID,
	))
	if err == nil {
		r.logger.Info("returning existing journey instance",
			"instance_id", inst.ID,
			"user_id", params.UserID,
			"template_id", params.TemplateID,
		)
		return inst, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("lookup active instance failed",
			"user_id", params.UserID,
			"template_id", params.TemplateID,
			"error", err,
		)
		return domain.JourneyInstance{}, false, err
	}

	totalScenes := params.TotalScenes
	if totalScenes <= 0 {
		totalScenes = 13
	}

	inst, err = scanInstance(r.pool.QueryRow(ctx, `
		INSERT INTO journey_instances (
			id, user_id, template_id, status, current_scene_number, total_scenes,
			next_scene_available_at, min_scene_gap_hours, cadence_mode, source, organization_id
		)
		VALUES ($1, $2, $3, 'active', 1, $4, NOW(), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		RETURNING `+instanceColumns+`
	`,
		uuid.New(),
		params.UserID,
		params.TemplateID,
		totalScenes,
		params.MinSceneGapHours,
		params.CadenceMode,
		params.Source,
		params.OrganizationID,
	))
	if err != nil {
		r.logger.Error("create journey instance failed",
			"user_id", params.UserID,
			"template_id", params.TemplateID,
			"error", err,
		)
		return domain.JourneyInstance{}, false, err
	}

	// Seed per-scene rows: first scene available, the rest locked. The
	// instance already exists, so a seeding failure is logged and dropped
	// rather than failing the start.
	if err := r.seedScenes(ctx, inst.ID, totalScenes); err != nil {
		metrics.IncSecondaryWriteFailure()
		r.logger.Warn("seed instance scenes failed", "instance_id", inst.ID, "error", err)
	}

	r.logger.Info("created journey instance",
		"instance_id", inst.ID,
		"user_id", params.UserID,
		"template_id", params.TemplateID,
		"total_scenes", totalScenes,
	)
	return inst, false, nil
}

func (r *JourneyRepository) seedScenes(ctx context.Context, instanceID uuid.UUID, totalScenes int) error {
	batch := &pgx.Batch{}
	for n := 1; n <= totalScenes; n++ {
		status := domain.SceneLocked
		if n == 1 {
			status = domain.SceneAvailable
		}
		batch.Queue(`
			INSERT INTO journey_instance_scenes (journey_instance_id, scene_number, status, unlocked_at)
			VALUES ($1, $2, $3, CASE WHEN $3 = 'available' THEN NOW() END)
			ON CONFLICT (journey_instance_id, scene_number) DO NOTHING
		`, instanceID, n, status)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for n := 1; n <= totalScenes; n++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed scene %d: %w", n, err)
		}
	}
	return nil
}

func (r *JourneyRepository) GetInstance(ctx context.Context, id uuid.UUID) (domain.JourneyInstance, error) {
	inst, err := scanInstance(r.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM journey_instances
		WHERE id=$1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JourneyInstance{}, domain.ErrInstanceNotFound
		}
		r.logger.Error("get instance failed", "instance_id", id, "error", err)
		return domain.JourneyInstance{}, err
	}
	return inst, nil
}

// CompleteScene marks scene N done and advances the instance to scene N+1.
// The advancement is always exactly one scene; completing the final scene
// flips the instance to complete instead.
func (r *JourneyRepository) CompleteScene(ctx context.Context, params domain.CompleteSceneParams) (domain.SceneAdvancement, error) {
	inst, err := r.GetInstance(ctx, params.InstanceID)
	if err != nil {
		return domain.SceneAdvancement{}, err
	}
	if inst.Status != domain.InstanceActive {
		return domain.SceneAdvancement{}, domain.ErrJourneyNotActive
	}

	nextScene := params.SceneNumber + 1
	journeyComplete := nextScene > inst.TotalScenes
	nextAvailable := time.Now().UTC().Add(time.Duration(inst.MinSceneGapHours) * time.Hour)

	// Secondary: mark the completed scene's progress row.
	_, err = r.pool.Exec(ctx, `
		INSERT INTO journey_instance_scenes (journey_instance_id, scene_number, status, completed_at)
		VALUES ($1, $2, 'completed', NOW())
		ON CONFLICT (journey_instance_id, scene_number)
		DO UPDATE SET status='completed', completed_at=NOW()
	`, params.InstanceID, params.SceneNumber)
	if err := r.secondary(err, params.Strict, "mark scene completed", params.InstanceID); err != nil {
		return domain.SceneAdvancement{}, err
	}

	// Primary: advance the instance. A failure here fails the request and
	// leaves the idempotency key unclaimed for a retry.
	currentScene := nextScene
	status := domain.InstanceActive
	if journeyComplete {
		currentScene = params.SceneNumber
		status = domain.InstanceComplete
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE journey_instances
		SET current_scene_number=$2,
		    status=$3,
		    next_scene_available_at=$4,
		    updated_at=NOW()
		WHERE id=$1
	`, params.InstanceID, currentScene, status, nextAvailable); err != nil {
		r.logger.Error("advance instance failed", "instance_id", params.InstanceID, "error", err)
		return domain.SceneAdvancement{}, err
	}

	// Secondary: unlock the next scene.
	if !journeyComplete {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO journey_instance_scenes (journey_instance_id, scene_number, status, unlocked_at)
			VALUES ($1, $2, 'available', NOW())
			ON CONFLICT (journey_instance_id, scene_number)
			DO UPDATE SET status='available', unlocked_at=NOW()
			WHERE journey_instance_scenes.status = 'locked'
		`, params.InstanceID, nextScene)
		if err := r.secondary(err, params.Strict, "unlock next scene", params.InstanceID); err != nil {
			return domain.SceneAdvancement{}, err
		}
	}

	// Secondary: append the completion event.
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scene_events (id, journey_instance_id, user_id, scene_number, event_type, idempotency_key)
		VALUES ($1, $2, $3, $4, 'scene_completed', NULLIF($5, ''))
	`, uuid.New(), params.InstanceID, params.UserID, params.SceneNumber, params.IdempotencyKey)
	if err := r.secondary(err, params.Strict, "insert completion event", params.InstanceID); err != nil {
		return domain.SceneAdvancement{}, err
	}

	r.logger.Info("scene completed",
		"instance_id", params.InstanceID,
		"scene_number", params.SceneNumber,
		"next_scene_number", nextScene,
		"journey_complete", journeyComplete,
	)

	adv := domain.SceneAdvancement{
		NextSceneNumber:      nextScene,
		NextSceneAvailableAt: nextAvailable,
		JourneyComplete:      journeyComplete,
	}
	if journeyComplete {
		adv.NextSceneNumber = params.SceneNumber
	}
	return adv, nil
}

func (r *JourneyRepository) secondary(err error, strict bool, op string, instanceID uuid.UUID) error {
	if err == nil {
		return nil
	}
	if strict {
		r.logger.Error("secondary write failed", "op", op, "instance_id", instanceID, "error", err)
		return err
	}
	metrics.IncSecondaryWriteFailure()
	r.logger.Warn("secondary write dropped", "op", op, "instance_id", instanceID, "error", err)
	return nil
}

func (r *JourneyRepository) GetProgress(ctx context.Context, id uuid.UUID) (domain.InstanceProgress, error) {
	inst, err := r.GetInstance(ctx, id)
	if err != nil {
		return domain.InstanceProgress{}, err
	}

	var completed int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM journey_instance_scenes
		WHERE journey_instance_id=$1 AND status='completed'
	`, id).Scan(&completed); err != nil {
		r.logger.Error("count completed scenes failed", "instance_id", id, "error", err)
		return domain.InstanceProgress{}, err
	}

	percent := 0
	if inst.TotalScenes > 0 {
		percent = completed * 100 / inst.TotalScenes
	}

	return domain.InstanceProgress{
		InstanceID:           inst.ID,
		Status:               inst.Status,
		CurrentSceneNumber:   inst.CurrentSceneNumber,
		TotalScenes:          inst.TotalScenes,
		CompletedScenes:      completed,
		ProgressPercent:      percent,
		NextSceneAvailableAt: inst.NextSceneAvailableAt,
		StartedAt:            inst.StartedAt,
		UpdatedAt:            inst.UpdatedAt,
	}, nil
}

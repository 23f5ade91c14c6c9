//go:build integration

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recoverkit/ingest-gateway/internal/domain"
)

func integrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Skipf("skip integration test: cannot create pool (%v)", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}
	return pool
}

func TestStartJourneyIsIdempotentForActiveInstance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := integrationPool(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewJourneyRepository(pool, logger)

	params := domain.StartJourneyParams{
		UserID:      "it-user-" + time.Now().Format("150405.000"),
		TemplateID:  "it-template",
		TotalScenes: 3,
	}

	first, existing, err := repo.StartJourney(ctx, params)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if existing {
		t.Fatal("expected fresh instance on first start")
	}

	second, existing, err := repo.StartJourney(ctx, params)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !existing {
		t.Fatal("expected second start to reuse the active instance")
	}
	if first.ID != second.ID {
		t.Fatalf("expected same instance id, got %s and %s", first.ID, second.ID)
	}
}

func TestCompleteSceneAdvancesByExactlyOne(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := integrationPool(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewJourneyRepository(pool, logger)

	inst, _, err := repo.StartJourney(ctx, domain.StartJourneyParams{
		UserID:      "it-adv-" + time.Now().Format("150405.000"),
		TemplateID:  "it-template",
		TotalScenes: 3,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	adv, err := repo.CompleteScene(ctx, domain.CompleteSceneParams{
		InstanceID:  inst.ID,
		SceneNumber: 1,
		UserID:      inst.UserID,
	})
	if err != nil {
		t.Fatalf("complete scene 1: %v", err)
	}
	if adv.NextSceneNumber != 2 {
		t.Fatalf("expected advancement to scene 2, got %d", adv.NextSceneNumber)
	}
	if adv.JourneyComplete {
		t.Fatal("journey must not be complete after scene 1 of 3")
	}

	got, err := repo.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.CurrentSceneNumber != 2 {
		t.Fatalf("expected instance on scene 2, got %d", got.CurrentSceneNumber)
	}

	// Completing the final scene flips the instance to complete without
	// advancing past the last scene.
	if _, err := repo.CompleteScene(ctx, domain.CompleteSceneParams{InstanceID: inst.ID, SceneNumber: 2, UserID: inst.UserID}); err != nil {
		t.Fatalf("complete scene 2: %v", err)
	}
	adv, err = repo.CompleteScene(ctx, domain.CompleteSceneParams{InstanceID: inst.ID, SceneNumber: 3, UserID: inst.UserID})
	if err != nil {
		t.Fatalf("complete scene 3: %v", err)
	}
	if !adv.JourneyComplete {
		t.Fatal("expected journey complete after final scene")
	}
	if adv.NextSceneNumber != 3 {
		t.Fatalf("expected final scene number to hold at 3, got %d", adv.NextSceneNumber)
	}
}

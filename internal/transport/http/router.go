// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/recoverkit/ingest-gateway/internal/auth"
	"github.com/recoverkit/ingest-gateway/internal/domain"
	"github.com/recoverkit/ingest-gateway/internal/idempotency"
	"github.com/recoverkit/ingest-gateway/internal/metrics"
	"github.com/recoverkit/ingest-gateway/internal/transport/middleware"
)

const (
	defaultTotalScenes      = 13
	defaultMinSceneGapHours = 0
)

type stateCheckinRequest struct {
	ArousalLevel   *int   `json:"arousal_level"`
	FocusLevel     *int   `json:"focus_level"`
	Context        string `json:"context"`
	IdempotencyKey string `json:"idempotency_key"`
}

type practiceCompleteRequest struct {
	PracticeID      string `json:"practice_id"`
	DurationSeconds *int   `json:"duration_seconds"`
	QualityRating   *int   `json:"quality_rating"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type sceneEventRequest struct {
	JourneyInstanceID string          `json:"journey_instance_id"`
	SceneID           *int            `json:"scene_id"`
	EventType         string          `json:"event_type"`
	EventData         json.RawMessage `json:"event_data"`
	IdempotencyKey    string          `json:"idempotency_key"`
}

type navicueResponseRequest struct {
	NavicueID      string          `json:"navicue_id"`
	DecisionID     string          `json:"decision_id"`
	ResponseData   json.RawMessage `json:"response_data"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type journeyStartRequest struct {
	IndividualID     string `json:"individual_id"`
	TemplateID       string `json:"template_id"`
	TotalScenes      int    `json:"total_scenes"`
	MinSceneGapHours int    `json:"min_scene_gap_hours"`
	CadenceMode      string `json:"cadence_mode"`
	Source           string `json:"source"`
	OrganizationID   string `json:"organization_id"`
	IdempotencyKey   string `json:"idempotency_key"`
}

type sceneCaptureRequest struct {
	SceneNumber    *int   `json:"scene_number"`
	CaptureKind    string `json:"capture_kind"`
	CaptureText    string `json:"capture_text"`
	StoragePath    string `json:"capture_storage_path"`
	IdempotencyKey string `json:"idempotency_key"`
}

type sceneCompleteRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	cache := deps.Cache
	if cache == nil {
		cache = idempotency.New(idempotency.DefaultTTL, idempotency.DefaultHighWater)
	}
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(auditTrailMiddleware(logger, deps.AuditRepo, deps.Tasks))
	if deps.Resolver != nil {
		r.Use(middleware.BearerAuth(deps.Resolver, logger))
	}

	// ---------------- HEALTH ----------------

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "schema not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- STATE CHECK-IN ----------------

	r.Post("/state-checkin", func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.RequireIdentity(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		var req stateCheckinRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ArousalLevel == nil {
			writeError(w, http.StatusBadRequest, "arousal_level required")
			return
		}
		if req.FocusLevel == nil {
			writeError(w, http.StatusBadRequest, "focus_level required")
			return
		}
		if !inRange(*req.ArousalLevel, 0, 100) || !inRange(*req.FocusLevel, 0, 100) {
			writeError(w, http.StatusBadRequest, "arousal_level and focus_level must be between 0 and 100")
			return
		}

		body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
			recorded, err := deps.EventRepo.InsertStateCheckin(ctx, domain.CreateStateCheckinParams{
				UserID:         identity.ID,
				ArousalLevel:   *req.ArousalLevel,
				FocusLevel:     *req.FocusLevel,
				Context:        strings.TrimSpace(req.Context),
				IdempotencyKey: req.IdempotencyKey,
			})
			if err != nil {
				return nil, err
			}
			metrics.IncEventIngested("state_checkin")
			broadcastDetached(deps, identity.ID, "state", "state_checkin_recorded", recorded)
			return json.Marshal(map[string]any{"status": "ok", "recorded": recorded})
		})
		if err != nil {
			logger.Error("state checkin failed", "user_id", identity.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record state checkin")
			return
		}
		respond(w, body, replayed)
	})

	// ---------------- PRACTICE COMPLETION ----------------

	r.Post("/practice-complete", func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.RequireIdentity(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		var req practiceCompleteRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.PracticeID = strings.TrimSpace(req.PracticeID)
		if req.PracticeID == "" {
			writeError(w, http.StatusBadRequest, "practice_id required")
			return
		}
		if req.DurationSeconds == nil || *req.DurationSeconds < 0 {
			writeError(w, http.StatusBadRequest, "duration_seconds required")
			return
		}
		if req.QualityRating == nil || !inRange(*req.QualityRating, 1, 5) {
			writeError(w, http.StatusBadRequest, "quality_rating must be between 1 and 5")
			return
		}

		body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
			recorded, err := deps.EventRepo.InsertPracticeCompletion(ctx, domain.CreatePracticeCompletionParams{
				UserID:          identity.ID,
				PracticeID:      req.PracticeID,
				DurationSeconds: *req.DurationSeconds,
				QualityRating:   *req.QualityRating,
				IdempotencyKey:  req.IdempotencyKey,
			})
			if err != nil {
				return nil, err
			}
			metrics.IncEventIngested("practice_completion")
			broadcastDetached(deps, identity.ID, "practices", "practice_completed", recorded)
			return json.Marshal(map[string]any{"status": "ok", "recorded": recorded})
		})
		if err != nil {
			logger.Error("practice completion failed", "user_id", identity.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record practice completion")
			return
		}
		respond(w, body, replayed)
	})

	// ---------------- SCENE EVENT ----------------

	r.Post("/scene-event", func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.RequireIdentity(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		var req sceneEventRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		instanceID, err := uuid.Parse(strings.TrimSpace(req.JourneyInstanceID))
		if err != nil {
			writeError(w, http.StatusBadRequest, "journey_instance_id required")
			return
		}
		if req.SceneID == nil || *req.SceneID < 1 {
			writeError(w, http.StatusBadRequest, "scene_id required")
			return
		}
		req.EventType = strings.TrimSpace(req.EventType)
		if req.EventType == "" {
			writeError(w, http.StatusBadRequest, "event_type required")
			return
		}

		body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
			recorded, err := deps.EventRepo.InsertSceneEvent(ctx, domain.CreateSceneEventParams{
				JourneyInstanceID: instanceID,
				UserID:            identity.ID,
				SceneNumber:       *req.SceneID,
				EventType:         req.EventType,
				EventData:         req.EventData,
				IdempotencyKey:    req.IdempotencyKey,
			})
			if err != nil {
				return nil, err
			}
			metrics.IncEventIngested("scene_event")
			broadcastDetached(deps, instanceID.String(), "scenes", "scene_event_recorded", recorded)
			return json.Marshal(map[string]any{"status": "ok", "recorded": recorded})
		})
		if err != nil {
			logger.Error("scene event failed", "journey_instance_id", instanceID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record scene event")
			return
		}
		respond(w, body, replayed)
	})

	// ---------------- NAVICUE RESPONSE ----------------

	r.Post("/navicue-response", func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.RequireIdentity(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		var req navicueResponseRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.NavicueID = strings.TrimSpace(req.NavicueID)
		req.DecisionID = strings.TrimSpace(req.DecisionID)
		if req.NavicueID == "" {
			writeError(w, http.StatusBadRequest, "navicue_id required")
			return
		}
		if req.DecisionID == "" {
			writeError(w, http.StatusBadRequest, "decision_id required")
			return
		}

		body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
			recorded, err := deps.EventRepo.InsertNavicueResponse(ctx, domain.CreateNavicueResponseParams{
				UserID:         identity.ID,
				NavicueID:      req.NavicueID,
				DecisionID:     req.DecisionID,
				ResponseData:   req.ResponseData,
				IdempotencyKey: req.IdempotencyKey,
			})
			if err != nil {
				return nil, err
			}
			metrics.IncEventIngested("navicue_response")
			broadcastDetached(deps, identity.ID, "navicues", "navicue_response_recorded", recorded)
			// Cue sequencing lives outside the gateway; next stays null
			// until a registry answers it.
			return json.Marshal(map[string]any{"status": "ok", "recorded": recorded, "next": nil})
		})
		if err != nil {
			logger.Error("navicue response failed", "user_id", identity.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record navicue response")
			return
		}
		respond(w, body, replayed)
	})

	// ---------------- JOURNEYS ----------------

	r.Route("/journey", func(j chi.Router) {
		j.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.RequireIdentity(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			var req journeyStartRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			req.IndividualID = strings.TrimSpace(req.IndividualID)
			req.TemplateID = strings.TrimSpace(req.TemplateID)
			if req.IndividualID == "" {
				writeError(w, http.StatusBadRequest, "individual_id required")
				return
			}
			if req.TemplateID == "" {
				writeError(w, http.StatusBadRequest, "template_id required")
				return
			}
			if req.IndividualID != identity.ID && !identity.IsAdmin {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if req.TotalScenes <= 0 {
				req.TotalScenes = defaultTotalScenes
			}
			if req.MinSceneGapHours < 0 {
				req.MinSceneGapHours = defaultMinSceneGapHours
			}

			body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
				instance, existing, err := deps.JourneyRepo.StartJourney(ctx, domain.StartJourneyParams{
					UserID:           req.IndividualID,
					TemplateID:       req.TemplateID,
					TotalScenes:      req.TotalScenes,
					MinSceneGapHours: req.MinSceneGapHours,
					CadenceMode:      strings.TrimSpace(req.CadenceMode),
					Source:           strings.TrimSpace(req.Source),
					OrganizationID:   strings.TrimSpace(req.OrganizationID),
				})
				if err != nil {
					return nil, err
				}
				if !existing {
					metrics.IncEventIngested("journey_start")
					broadcastDetached(deps, instance.ID.String(), "journey", "journey_started", instance)
				}
				return json.Marshal(map[string]any{"instance": instance})
			})
			if err != nil {
				logger.Error("journey start failed",
					"individual_id", req.IndividualID,
					"template_id", req.TemplateID,
					"error", err,
				)
				writeError(w, http.StatusInternalServerError, "failed to start journey")
				return
			}
			respond(w, body, replayed)
		})

		j.Get("/instance/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.RequireIdentity(r.Context()); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid instance ID")
				return
			}

			progress, err := deps.JourneyRepo.GetProgress(r.Context(), instanceID)
			if err != nil {
				if errors.Is(err, domain.ErrInstanceNotFound) {
					writeError(w, http.StatusNotFound, "journey instance not found")
					return
				}
				logger.Error("get journey status failed", "instance_id", instanceID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to get journey status")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
		})

		j.Post("/instance/{id}/scene/{n}/complete", func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.RequireIdentity(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid instance ID")
				return
			}
			sceneNumber, err := strconv.Atoi(chi.URLParam(r, "n"))
			if err != nil || sceneNumber < 1 {
				writeError(w, http.StatusBadRequest, "invalid scene number")
				return
			}

			var req sceneCompleteRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
				adv, err := deps.JourneyRepo.CompleteScene(ctx, domain.CompleteSceneParams{
					InstanceID:     instanceID,
					SceneNumber:    sceneNumber,
					UserID:         identity.ID,
					IdempotencyKey: req.IdempotencyKey,
					Strict:         deps.StrictSecondaryWrites,
				})
				if err != nil {
					return nil, err
				}
				metrics.IncEventIngested("scene_completion")
				broadcastDetached(deps, instanceID.String(), "scenes", "scene_completed", adv)
				return json.Marshal(map[string]any{
					"ok":                      true,
					"next_scene_number":       adv.NextSceneNumber,
					"next_scene_available_at": adv.NextSceneAvailableAt,
					"journey_complete":        adv.JourneyComplete,
				})
			})
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrInstanceNotFound):
					writeError(w, http.StatusNotFound, "journey instance not found")
				case errors.Is(err, domain.ErrJourneyNotActive):
					writeError(w, http.StatusConflict, "journey instance is not active")
				default:
					logger.Error("scene completion failed",
						"instance_id", instanceID,
						"scene_number", sceneNumber,
						"error", err,
					)
					writeError(w, http.StatusInternalServerError, "failed to complete scene")
				}
				return
			}
			respond(w, body, replayed)
		})

		j.Post("/instance/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.RequireIdentity(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid instance ID")
				return
			}

			var req sceneCaptureRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if req.SceneNumber == nil || *req.SceneNumber < 1 {
				writeError(w, http.StatusBadRequest, "scene_number required")
				return
			}
			req.CaptureKind = strings.TrimSpace(req.CaptureKind)
			if req.CaptureKind == "" {
				req.CaptureKind = "text"
			}

			body, replayed, err := cache.Do(r.Context(), req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
				recorded, err := deps.EventRepo.InsertSceneCapture(ctx, domain.CreateSceneCaptureParams{
					JourneyInstanceID: instanceID,
					UserID:            identity.ID,
					SceneNumber:       *req.SceneNumber,
					CaptureKind:       req.CaptureKind,
					CaptureText:       req.CaptureText,
					StoragePath:       strings.TrimSpace(req.StoragePath),
					IdempotencyKey:    req.IdempotencyKey,
				})
				if err != nil {
					return nil, err
				}
				metrics.IncEventIngested("scene_capture")
				broadcastDetached(deps, instanceID.String(), "captures", "scene_capture_recorded", recorded)
				return json.Marshal(map[string]any{"status": "ok", "recorded": recorded})
			})
			if err != nil {
				logger.Error("scene capture failed", "instance_id", instanceID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to record scene capture")
				return
			}
			respond(w, body, replayed)
		})
	})

	// ---------------- AUDIT (ADMIN) ----------------

	r.Get("/audit/recent", func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireAdmin(r.Context()); err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		entries, err := deps.AuditRepo.ListRecent(r.Context(), limit)
		if err != nil {
			logger.Error("list audit entries failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list audit entries")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	})

	return r
}

// broadcastDetached hands the publish to the background runner so a slow or
// failing broker never delays the response. Without a runner it still runs
// inline; the notifier swallows its own failures either way.
func broadcastDetached(deps Deps, targetID, channel, eventType string, payload any) {
	if deps.Notifier == nil {
		return
	}
	if deps.Tasks == nil {
		deps.Notifier.Broadcast(context.Background(), targetID, channel, eventType, payload)
		return
	}
	deps.Tasks.Go("broadcast", func(ctx context.Context) error {
		deps.Notifier.Broadcast(ctx, targetID, channel, eventType, payload)
		return nil
	})
}

func respond(w http.ResponseWriter, body []byte, replayed bool) {
	if replayed {
		metrics.IncIdempotencyReplay()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}

	return nil
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

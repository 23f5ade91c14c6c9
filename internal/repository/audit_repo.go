// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recoverkit/ingest-gateway/internal/domain"
)

// AuditRepository appends request audit rows. Callers submit writes through
// a detached task and never observe failures here.
type AuditRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuditRepository(pool *pgxpool.Pool, logger *slog.Logger) *AuditRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuditRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *AuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, route, method, status, duration_ms, caller_id, tenant_id, meta)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`,
		id,
		entry.Route,
		entry.Method,
		entry.Status,
		entry.DurationMS,
		entry.CallerID,
		entry.TenantID,
		entry.Meta,
	)
	return err
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, route, method, status, duration_ms,
		       COALESCE(caller_id, ''), COALESCE(tenant_id, ''), meta, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		r.logger.Error("list audit rows failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Route,
			&entry.Method,
			&entry.Status,
			&entry.DurationMS,
			&entry.CallerID,
			&entry.TenantID,
			&entry.Meta,
			&entry.CreatedAt,
		); err != nil {
			r.logger.Error("scan audit row failed", "error", err)
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("audit rows iteration failed", "error", err)
		return nil, err
	}

	return out, nil
}

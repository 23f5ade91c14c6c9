// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only row describing a handled request. Writes are
// fire-and-forget; a lost row is never surfaced to the caller.
type AuditEntry struct {
	ID         uuid.UUID       `json:"id"`
	Route      string          `json:"route"`
	Method     string          `json:"method"`
	Status     int             `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	CallerID   string          `json:"caller_id,omitempty"`
	TenantID   string          `json:"tenant_id,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/recoverkit/ingest-gateway/internal/domain"
)

// Identity is the verified caller of one request. It is resolved once by the
// bearer middleware and never mutated afterwards.
type Identity struct {
	ID       string
	Email    string
	Role     string
	IsAdmin  bool
	TenantID string
}

// Resolver turns a bearer credential into a caller identity. found=false
// covers every rejection: missing, malformed, expired, wrong signature.
// A resolver never returns an identity alongside an error.
type Resolver interface {
	Resolve(ctx context.Context, bearerToken string) (Identity, bool, error)
}

// RequireIdentity is the fail-closed gate for authenticated handlers.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

// RequireAdmin gates privileged handlers on the admin flag.
func RequireAdmin(ctx context.Context) (Identity, error) {
	id, err := RequireIdentity(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.IsAdmin {
		return Identity{}, domain.ErrForbidden
	}
	return id, nil
}

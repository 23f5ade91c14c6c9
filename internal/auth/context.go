// SPDX-License-Identifier: Apache-2.0

package auth

import "context"

type identityContextKey struct{}
type idempotencyKeyContextKey struct{}

var ctxIdentityKey identityContextKey
var ctxIdempotencyKey idempotencyKeyContextKey

// WithIdentity stores the resolved caller identity on the request context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

// IdentityFromContext reads the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v := ctx.Value(ctxIdentityKey)
	id, ok := v.(Identity)
	if !ok || id.ID == "" {
		return Identity{}, false
	}
	return id, true
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxIdempotencyKey, key)
}

func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxIdempotencyKey)
	key, ok := v.(string)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

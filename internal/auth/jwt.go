// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims mirrors the hosted-auth access token shape: subject plus a few
// profile fields and an admin flag under app_metadata.
type tokenClaims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	AppMetadata struct {
		IsAdmin bool `json:"is_admin,omitempty"`
	} `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 bearer tokens with a shared secret. Every
// rejection collapses to not-found: an expired, malformed, or forged token is
// indistinguishable from a missing one as far as handlers are concerned.
type JWTResolver struct {
	secret []byte
	logger *slog.Logger
}

func NewJWTResolver(secret string, logger *slog.Logger) (*JWTResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: empty JWT secret")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTResolver{secret: []byte(secret), logger: logger}, nil
}

func (r *JWTResolver) Resolve(_ context.Context, bearerToken string) (Identity, bool, error) {
	if bearerToken == "" {
		return Identity{}, false, nil
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(bearerToken, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		r.logger.Debug("bearer token rejected", "error", err)
		return Identity{}, false, nil
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, false, nil
	}

	return Identity{
		ID:       sub,
		Email:    claims.Email,
		Role:     claims.Role,
		IsAdmin:  claims.AppMetadata.IsAdmin,
		TenantID: claims.TenantID,
	}, true, nil
}

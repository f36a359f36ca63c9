// Package auth authenticates providers calling the registry's write APIs.
// Providers present either an API key (sk_live_...) or a dashboard JWT signed
// by a whitelisted issuer and verified through its JWKS endpoint.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dock-ai/registry/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ProviderKey is the context key for the authenticated provider.
	ProviderKey contextKey = "provider"
	// MethodKey is the context key for how the provider authenticated.
	MethodKey contextKey = "auth_method"
)

// Method names the credential a provider authenticated with.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Claims is the dashboard JWT claim set. ProviderID binds the token to one
// provider account.
type Claims struct {
	jwt.RegisteredClaims
	ProviderID string   `json:"provider_id,omitempty"`
	Email      string   `json:"email,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// GetProvider retrieves the authenticated provider from the request context.
func GetProvider(ctx context.Context) (*models.Provider, bool) {
	p, ok := ctx.Value(ProviderKey).(*models.Provider)
	return p, ok && p != nil
}

// GetMethod retrieves the authentication method from the request context.
func GetMethod(ctx context.Context) (Method, bool) {
	m, ok := ctx.Value(MethodKey).(Method)
	return m, ok
}

// WithProvider stores an authenticated provider in ctx.
func WithProvider(ctx context.Context, p *models.Provider, method Method) context.Context {
	ctx = context.WithValue(ctx, ProviderKey, p)
	return context.WithValue(ctx, MethodKey, method)
}

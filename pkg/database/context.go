package database

import (
	"context"
)

type contextKey string

const (
	// ScopeKey is the context key for storing the scoped database connection.
	ScopeKey contextKey = "dbScope"
)

// GetScope retrieves the scoped database connection from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ScopeFunc acquires a scoped connection and stores it in the returned
// context. An empty providerID yields an unscoped (read-all) connection.
// The cleanup function MUST be called.
type ScopeFunc func(ctx context.Context, providerID string) (context.Context, func(), error)

// NewScopeFunc creates a ScopeFunc backed by db.
func NewScopeFunc(db *DB) ScopeFunc {
	return func(ctx context.Context, providerID string) (context.Context, func(), error) {
		var (
			scope *Scope
			err   error
		)
		if providerID == "" {
			scope, err = db.WithoutProvider(ctx)
		} else {
			scope, err = db.WithProvider(ctx, providerID)
		}
		if err != nil {
			return nil, nil, err
		}
		return SetScope(ctx, scope), func() { scope.Close() }, nil
	}
}

// NoopScopeFunc returns ctx unchanged. It backs services whose repositories do
// not need a pooled connection, such as in-memory fakes in unit tests.
func NoopScopeFunc(ctx context.Context, _ string) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a pooled connection and ensures cleanup. When acquired with
// WithProvider, the connection has app.current_provider_id set so that the
// row level security policies on provider-owned tables only accept writes for
// that provider.
type Scope struct {
	Conn       *pgxpool.Conn
	ProviderID string
}

// Close resets the provider context and releases the connection to the pool.
// This MUST be called to keep provider context from leaking to the next user
// of the connection.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_provider_id")
	s.Conn.Release()
}

// WithProvider acquires a connection scoped to providerID.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithProvider(ctx context.Context, providerID string) (*Scope, error) {
	if providerID == "" {
		return nil, fmt.Errorf("provider id is required for a provider scope")
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_provider_id', $1, false)", providerID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &Scope{Conn: conn, ProviderID: providerID}, nil
}

// WithoutProvider acquires a connection with no provider context. Reads see
// every provider's rows; writes to provider-owned tables are rejected by RLS.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithoutProvider(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

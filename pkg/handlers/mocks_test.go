package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dock-ai/registry/pkg/auth"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services"
)

// mockResolutionService is a configurable services.ResolutionService.
type mockResolutionService struct {
	result   *models.ResolveResult
	err      error
	gotPath  string
	gotInput string
}

func (m *mockResolutionService) Resolve(ctx context.Context, domain, path string) (*models.ResolveResult, error) {
	m.gotInput = domain
	m.gotPath = path
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockSubmitService is a configurable services.SubmitService.
type mockSubmitService struct {
	result    *services.SubmitResult
	err       error
	gotDomain string
}

func (m *mockSubmitService) Submit(ctx context.Context, domain string) (*services.SubmitResult, error) {
	m.gotDomain = domain
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockSyncService is a configurable services.SyncService.
type mockSyncService struct {
	outcome     *services.SyncOutcome
	job         *models.SyncJob
	err         error
	gotProvider string
	gotEntities []models.EntityInput
	gotOps      []models.Operation
	gotJobID    uuid.UUID
}

func (m *mockSyncService) Sync(ctx context.Context, providerID string, entities []models.EntityInput) (*services.SyncOutcome, error) {
	m.gotProvider = providerID
	m.gotEntities = entities
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func (m *mockSyncService) Register(ctx context.Context, providerID string, ops []models.Operation) (*services.SyncOutcome, error) {
	m.gotProvider = providerID
	m.gotOps = ops
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func (m *mockSyncService) GetJob(ctx context.Context, providerID string, jobID uuid.UUID) (*models.SyncJob, error) {
	m.gotProvider = providerID
	m.gotJobID = jobID
	if m.err != nil {
		return nil, m.err
	}
	return m.job, nil
}

func (m *mockSyncService) ResumeUnfinished(ctx context.Context) (int, error) {
	return 0, nil
}

// mockAuthService authenticates every request as provider, or fails with err.
type mockAuthService struct {
	provider *models.Provider
	err      error
	allowJWT bool
}

func (m *mockAuthService) Authenticate(r *http.Request, allowJWT bool) (*models.Provider, auth.Method, error) {
	m.allowJWT = allowJWT
	if m.err != nil {
		return nil, "", m.err
	}
	return m.provider, auth.MethodAPIKey, nil
}

var (
	_ services.ResolutionService = (*mockResolutionService)(nil)
	_ services.SubmitService     = (*mockSubmitService)(nil)
	_ services.SyncService       = (*mockSyncService)(nil)
	_ auth.AuthService           = (*mockAuthService)(nil)
)

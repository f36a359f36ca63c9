package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services/workqueue"
)

// memoryStore is an in-memory provider registry shared by the fake
// repositories below. UpdateSlice holds the store lock for the whole
// read-plan-apply sequence, like the advisory-locked transaction.
type memoryStore struct {
	mu        sync.Mutex
	providers map[string]*models.Provider
	slices    map[string][]*models.ProviderEntity
	seq       int64

	updateErr error
	listErr   error
}

func newMemoryStore(providers ...*models.Provider) *memoryStore {
	s := &memoryStore{
		providers: make(map[string]*models.Provider),
		slices:    make(map[string][]*models.ProviderEntity),
	}
	for _, p := range providers {
		s.providers[p.ID] = p
	}
	return s
}

func (s *memoryStore) ListByProvider(ctx context.Context, providerID string) ([]*models.ProviderEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSlice(s.slices[providerID]), nil
}

func (s *memoryStore) ListRegistrationsByDomain(ctx context.Context, domain string) ([]*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	var regs []*models.Registration
	for providerID, rows := range s.slices {
		p := s.providers[providerID]
		for _, e := range rows {
			if e.Domain != domain {
				continue
			}
			r := &models.Registration{ProviderEntity: *e, Trusted: p != nil && p.Trusted}
			if p != nil {
				r.Endpoint = p.Endpoint
				r.ProviderCapabilities = p.Capabilities
			}
			regs = append(regs, r)
		}
	}
	slices.SortFunc(regs, func(a, b *models.Registration) int { return int(a.Seq - b.Seq) })
	return regs, nil
}

func (s *memoryStore) UpdateSlice(ctx context.Context, providerID string, plan models.PlanFunc) (*models.Changeset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}

	current := cloneSlice(s.slices[providerID])
	cs, err := plan(current)
	if err != nil {
		return nil, err
	}

	rows := s.slices[providerID]
	rows = slices.DeleteFunc(rows, func(e *models.ProviderEntity) bool {
		return slices.Contains(cs.Deletes, e.EntityID)
	})
	now := time.Now()
	for _, u := range cs.Upserts {
		if u.ProviderID != providerID {
			return nil, fmt.Errorf("row for provider %s in slice of %s", u.ProviderID, providerID)
		}
		row := *u
		row.UpdatedAt = now
		i := slices.IndexFunc(rows, func(e *models.ProviderEntity) bool { return e.EntityID == u.EntityID })
		if i >= 0 {
			row.Seq = rows[i].Seq
			row.CreatedAt = rows[i].CreatedAt
			rows[i] = &row
			continue
		}
		s.seq++
		row.Seq = s.seq
		row.CreatedAt = now
		rows = append(rows, &row)
	}
	slices.SortFunc(rows, func(a, b *models.ProviderEntity) int { return int(a.Seq - b.Seq) })
	s.slices[providerID] = rows
	return cs, nil
}

func (s *memoryStore) CountByProvider(ctx context.Context, providerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slices[providerID]), nil
}

func (s *memoryStore) entityIDs(providerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.slices[providerID]))
	for _, e := range s.slices[providerID] {
		ids = append(ids, e.EntityID)
	}
	return ids
}

func cloneSlice(rows []*models.ProviderEntity) []*models.ProviderEntity {
	out := make([]*models.ProviderEntity, len(rows))
	for i, e := range rows {
		c := *e
		out[i] = &c
	}
	return out
}

// mockEntityCardRepository is an in-memory EntityCardRepository.
type mockEntityCardRepository struct {
	mu        sync.Mutex
	cards     map[string]*models.IndexedCard
	upsertErr error
	deleted   []string
}

func newMockEntityCardRepository() *mockEntityCardRepository {
	return &mockEntityCardRepository{cards: make(map[string]*models.IndexedCard)}
}

func (m *mockEntityCardRepository) Upsert(ctx context.Context, card *models.IndexedCard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	_, existed := m.cards[card.Domain]
	m.cards[card.Domain] = card
	return existed, nil
}

func (m *mockEntityCardRepository) Get(ctx context.Context, domain string) (*models.IndexedCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[domain]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (m *mockEntityCardRepository) Exists(ctx context.Context, domain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cards[domain]
	return ok, nil
}

func (m *mockEntityCardRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*models.IndexedCard
	for _, c := range m.cards {
		if c.FetchedAt.Before(olderThan) {
			stale = append(stale, c)
		}
	}
	slices.SortFunc(stale, func(a, b *models.IndexedCard) int { return a.FetchedAt.Compare(b.FetchedAt) })
	var domains []string
	for i, c := range stale {
		if i >= limit {
			break
		}
		domains = append(domains, c.Domain)
	}
	return domains, nil
}

func (m *mockEntityCardRepository) Delete(ctx context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[domain]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.cards, domain)
	m.deleted = append(m.deleted, domain)
	return nil
}

// mockPendingProviderRepository is an in-memory PendingProviderRepository.
type mockPendingProviderRepository struct {
	mu       sync.Mutex
	byDomain map[string][]models.PendingProvider
	replaced int
}

func newMockPendingProviderRepository() *mockPendingProviderRepository {
	return &mockPendingProviderRepository{byDomain: make(map[string][]models.PendingProvider)}
}

func (m *mockPendingProviderRepository) Replace(ctx context.Context, domain string, hints []models.PendingProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDomain[domain] = hints
	m.replaced++
	return nil
}

func (m *mockPendingProviderRepository) ListByDomain(ctx context.Context, domain string) ([]models.PendingProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDomain[domain], nil
}

// mockSyncJobRepository is an in-memory SyncJobRepository enforcing the
// conditional status update.
type mockSyncJobRepository struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.SyncJob
	payloads  map[uuid.UUID][]models.EntityInput
	progress  []int
	createErr error
}

func newMockSyncJobRepository() *mockSyncJobRepository {
	return &mockSyncJobRepository{
		jobs:     make(map[uuid.UUID]*models.SyncJob),
		payloads: make(map[uuid.UUID][]models.EntityInput),
	}
}

func (m *mockSyncJobRepository) Create(ctx context.Context, job *models.SyncJob, entities []models.EntityInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	c := *job
	m.jobs[job.ID] = &c
	m.payloads[job.ID] = entities
	return nil
}

func (m *mockSyncJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("sync job %s: %w", id, apperrors.ErrNotFound)
	}
	c := *j
	return &c, nil
}

func (m *mockSyncJobRepository) UpdateProgress(ctx context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok || stored.Status != models.SyncJobProcessing {
		return apperrors.ErrInvalidTransition
	}
	stored.ProcessedEntities = job.ProcessedEntities
	stored.SetCounters(job.Result())
	m.progress = append(m.progress, job.ProcessedEntities)
	return nil
}

func (m *mockSyncJobRepository) Transition(ctx context.Context, job *models.SyncJob, from models.SyncJobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok || stored.Status != from {
		return apperrors.ErrInvalidTransition
	}
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *mockSyncJobRepository) ListUnfinished(ctx context.Context) ([]*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SyncJob
	for _, j := range m.jobs {
		if !j.Status.IsTerminal() {
			c := *j
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockSyncJobRepository) LoadPayload(ctx context.Context, id uuid.UUID) ([]models.EntityInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payloads[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (m *mockSyncJobRepository) DeletePayload(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payloads, id)
	return nil
}

func (m *mockSyncJobRepository) progressSnapshot() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.progress)
}

// mockProviderRepository is an in-memory ProviderRepository.
type mockProviderRepository struct {
	mu        sync.Mutex
	providers map[string]*models.Provider
}

func newMockProviderRepository() *mockProviderRepository {
	return &mockProviderRepository{providers: make(map[string]*models.Provider)}
}

func (m *mockProviderRepository) Create(ctx context.Context, p *models.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[p.ID]; ok {
		return fmt.Errorf("provider %q: %w", p.ID, apperrors.ErrConflict)
	}
	c := *p
	m.providers[p.ID] = &c
	return nil
}

func (m *mockProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *mockProviderRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.APIKeyHash == hash {
			c := *p
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Provider
	for _, p := range m.providers {
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Provider) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *mockProviderRepository) SetFlags(ctx context.Context, id string, trusted, verified *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if trusted != nil {
		p.Trusted = *trusted
	}
	if verified != nil {
		p.Verified = *verified
	}
	return nil
}

func (m *mockProviderRepository) SetAPIKeyHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	p.APIKeyHash = hash
	return nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// mockSource is an entitycard.Source returning fixed cards per domain.
type mockSource struct {
	mu          sync.Mutex
	cards       map[string]*models.EntityCard
	errs        map[string]error
	lookups     int
	invalidated []string
}

func newMockSource() *mockSource {
	return &mockSource{cards: make(map[string]*models.EntityCard), errs: make(map[string]error)}
}

func (m *mockSource) Lookup(ctx context.Context, domain string) *models.EntityCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.errs[domain] != nil {
		return nil
	}
	return m.cards[domain]
}

func (m *mockSource) FetchFresh(ctx context.Context, domain string) (*models.EntityCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[domain]; err != nil {
		return nil, err
	}
	card, ok := m.cards[domain]
	if !ok {
		return nil, &apperrors.CardUnavailableError{URL: "https://" + domain + models.EntityCardPath, Cause: apperrors.ErrNotFound}
	}
	return card, nil
}

func (m *mockSource) Invalidate(ctx context.Context, domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, domain)
}

// mockDetector returns fixed pending providers.
type mockDetector struct {
	found []models.PendingProvider
	err   error
	calls int
}

func (m *mockDetector) Detect(ctx context.Context, domain string) ([]models.PendingProvider, error) {
	m.calls++
	return m.found, m.err
}

// capturingQueue records enqueued tasks without running them.
type capturingQueue struct {
	mu    sync.Mutex
	tasks []workqueue.Task
}

func (q *capturingQueue) Enqueue(task workqueue.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *capturingQueue) taken() []workqueue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.tasks)
}

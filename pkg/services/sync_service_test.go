package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

type syncFixture struct {
	store *memoryStore
	jobs  *mockSyncJobRepository
	queue *capturingQueue
	svc   *syncService
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{AsyncThreshold: 1000, ChunkSize: 500, Workers: 2, MaxOperations: 1000, MaxRetries: 3}
}

func newSyncFixture(providers ...*models.Provider) *syncFixture {
	f := &syncFixture{
		store: newMemoryStore(providers...),
		jobs:  newMockSyncJobRepository(),
		queue: &capturingQueue{},
	}
	f.svc = NewSyncService(database.NoopScopeFunc, f.store, f.jobs, f.queue, nil, testSyncConfig(), zap.NewNop()).(*syncService)
	return f
}

func manyEntities(n int) []models.EntityInput {
	out := make([]models.EntityInput, n)
	for i := range out {
		out[i] = models.EntityInput{
			EntityID: fmt.Sprintf("venue-%05d", i),
			Name:     fmt.Sprintf("Venue %d", i),
			Domain:   fmt.Sprintf("venue%d.example.com", i),
		}
	}
	return out
}

func TestSync_IdempotentResubmission(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	payload := manyEntities(25)

	first, err := f.svc.Sync(context.Background(), "p", payload)
	require.NoError(t, err)
	assert.False(t, first.Async)
	assert.Equal(t, models.SyncResult{Total: 25, Created: 25}, first.Result)
	assert.True(t, first.Success())

	second, err := f.svc.Sync(context.Background(), "p", payload)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Total: 25, Unchanged: 25}, second.Result)
}

func TestSync_PartialBatch(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	payload := manyEntities(3)
	payload[1].Lat = floatPtr(91)
	payload[1].Lng = floatPtr(0)

	out, err := f.svc.Sync(context.Background(), "p", payload)
	require.NoError(t, err)
	assert.False(t, out.Success())
	assert.Equal(t, models.SyncResult{Total: 3, Created: 2, Errors: 1}, out.Result)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "venue-00001", out.Errors[0].EntityID)
	assert.Equal(t, []string{"venue-00000", "venue-00002"}, f.store.entityIDs("p"))
}

func TestSync_StructuralErrorsProcessNothing(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	payload := manyEntities(3)
	payload[2].Name = ""

	_, err := f.svc.Sync(context.Background(), "p", payload)
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Details, "entities[2].name")
	assert.Empty(t, f.store.entityIDs("p"))

	_, err = f.svc.Sync(context.Background(), "p", nil)
	require.True(t, errors.As(err, &verr))
}

func TestSync_AsyncThresholdBoundary(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))

	out, err := f.svc.Sync(context.Background(), "p", manyEntities(1000))
	require.NoError(t, err)
	assert.False(t, out.Async)
	assert.Equal(t, 1000, out.Result.Created)
	assert.Empty(t, f.queue.taken())

	start := time.Now()
	out, err = f.svc.Sync(context.Background(), "p", manyEntities(50000))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, out.Async)
	require.NotNil(t, out.Job)
	assert.Equal(t, models.SyncJobPending, out.Job.Status)
	assert.Equal(t, 50000, out.Job.TotalEntities)
	assert.Len(t, f.queue.taken(), 1)
	assert.Len(t, f.store.entityIDs("p"), 1000, "nothing is applied before the job runs")

	out, err = f.svc.Sync(context.Background(), "p", manyEntities(1001))
	require.NoError(t, err)
	assert.True(t, out.Async)
}

func TestRegister_NeverDeletesImplicitly(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "p", []models.Operation{
		{Action: models.SyncActionUpsert, Entity: &models.EntityInput{EntityID: "a", Name: "A", Domain: "a.com"}},
		{Action: models.SyncActionUpsert, Entity: &models.EntityInput{EntityID: "b", Name: "B", Domain: "b.com"}},
	})
	require.NoError(t, err)

	out, err := f.svc.Register(ctx, "p", []models.Operation{
		{Action: models.SyncActionUpsert, Entity: &models.EntityInput{EntityID: "c", Name: "C", Domain: "c.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Total: 1, Created: 1}, out.Result)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, f.store.entityIDs("p"))

	out, err = f.svc.Register(ctx, "p", []models.Operation{{Action: models.SyncActionDelete, EntityID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Deleted)
	assert.ElementsMatch(t, []string{"b", "c"}, f.store.entityIDs("p"))
}

func TestRegister_OperationCap(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	ops := make([]models.Operation, 1001)
	for i := range ops {
		ops[i] = models.Operation{Action: models.SyncActionDelete, EntityID: "x"}
	}

	_, err := f.svc.Register(context.Background(), "p", ops)
	assert.ErrorIs(t, err, apperrors.ErrTooManyOperations)

	out, err := f.svc.Register(context.Background(), "p", ops[:1000])
	require.NoError(t, err)
	assert.Equal(t, 1000, out.Result.Errors, "deleting unknown entities is a per-item error")
}

func TestSync_ConcurrentSyncsOfOneProviderDoNotInterleave(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	payloadA := manyEntities(200)[:100]
	payloadB := manyEntities(200)[100:]

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := payloadA
			if i%2 == 1 {
				payload = payloadB
			}
			_, err := f.svc.Sync(context.Background(), "p", payload)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ids := f.store.entityIDs("p")
	require.Len(t, ids, 100, "the final slice equals exactly one of the payloads")
	first := ids[0]
	assert.True(t, first == payloadA[0].EntityID || first == payloadB[0].EntityID)
	assert.Zero(t, f.svc.locks.Len())
}

func TestSync_StoreFailure(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	f.store.updateErr = errors.New("permission denied for table provider_entities")

	_, err := f.svc.Sync(context.Background(), "p", manyEntities(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestGetJob_Ownership(t *testing.T) {
	f := newSyncFixture(testProvider("p", false), testProvider("q", false))
	out, err := f.svc.Sync(context.Background(), "p", manyEntities(1001))
	require.NoError(t, err)

	job, err := f.svc.GetJob(context.Background(), "p", out.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Job.ID, job.ID)

	_, err = f.svc.GetJob(context.Background(), "q", out.Job.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.GetJob(context.Background(), "p", uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResumeUnfinished(t *testing.T) {
	f := newSyncFixture(testProvider("p", false))
	_, err := f.svc.Sync(context.Background(), "p", manyEntities(1001))
	require.NoError(t, err)

	n, err := f.svc.ResumeUnfinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.queue.taken(), 2)
}

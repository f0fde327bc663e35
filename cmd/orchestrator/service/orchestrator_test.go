package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/locks"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// mockEngine records reingest calls
type mockEngine struct {
	calls  atomic.Int64
	ok     bool
	err    error
	onCall func()
}

func (m *mockEngine) ReingestAsset(ctx context.Context, assetKey string) (bool, error) {
	m.calls.Add(1)
	if m.onCall != nil {
		m.onCall()
	}
	return m.ok, m.err
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	catalog      *mockCatalog
	store        *storage.MemoryStore
	engine       *mockEngine
	keys         *storage.KeyGenerator
	root         string
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	root := t.TempDir()
	catalog := newMockCatalog()
	tracker := newTestTracker(t, catalog)
	store := storage.NewMemoryStore()
	engine := &mockEngine{ok: true}
	keys := storage.NewKeyGenerator("eu-west-1", "", "storage", "thumbs", "output", root)

	orchestrator := NewOrchestrator(tracker, locks.New(), store, storage.NewFastDisk(root),
		keys, engine, 5*time.Second, logger.NewNop())

	return &orchestratorFixture{
		orchestrator: orchestrator,
		catalog:      catalog,
		store:        store,
		engine:       engine,
		keys:         keys,
		root:         root,
	}
}

func (f *orchestratorFixture) seed(t *testing.T, id models.AssetID, payload string) *models.OrchestrationAsset {
	t.Helper()
	record := testRecord(id)
	f.catalog.add(record)

	ref, err := storage.ParseURI(record.Location)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), ref, strings.NewReader(payload), "image/jp2"))

	return &models.OrchestrationAsset{
		AssetID:  id,
		Channels: record.DeliveryChannels,
		Location: record.Location,
	}
}

func TestEnsureOrchestrated_CopiesToFastDisk(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "roll-1"}
	asset := f.seed(t, id, "jp2-bytes")

	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultOrchestrated, result)

	data, err := os.ReadFile(f.keys.LocalPath(id.String()))
	require.NoError(t, err)
	assert.Equal(t, "jp2-bytes", string(data))
}

func TestEnsureOrchestrated_FastPathSkipsStore(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "roll-1"}
	asset := f.seed(t, id, "jp2-bytes")

	require.Equal(t, ResultOrchestrated, f.orchestrator.EnsureOrchestrated(context.Background(), asset))
	fetches := f.store.GetCount["s3://storage/"+id.String()]

	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultAlreadyOrchestrated, result)
	assert.Equal(t, fetches, f.store.GetCount["s3://storage/"+id.String()])
}

func TestEnsureOrchestrated_ConcurrentCallersSingleCopy(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "busy"}
	f.seed(t, id, strings.Repeat("x", 1<<16))

	const workers = 16
	results := make([]OrchestrationResult, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			asset := &models.OrchestrationAsset{
				AssetID:  id,
				Channels: models.ChannelImage,
				Location: "s3://storage/" + id.String(),
			}
			results[i] = f.orchestrator.EnsureOrchestrated(context.Background(), asset)
		}(i)
	}
	close(start)
	wg.Wait()

	copied := 0
	for _, result := range results {
		require.Contains(t, []OrchestrationResult{ResultOrchestrated, ResultAlreadyOrchestrated}, result)
		if result == ResultOrchestrated {
			copied++
		}
	}
	assert.Equal(t, 1, copied, "exactly one caller should perform the copy")
	assert.Equal(t, 1, f.store.GetCount["s3://storage/"+id.String()])
}

func TestEnsureOrchestrated_SharedTrackedRecord(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "shared"}
	f.seed(t, id, "jp2-bytes")

	// Every request for an asset gets the same cached record, so the
	// orchestrator must not write to it
	tracker := newTestTracker(t, f.catalog)
	asset, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, asset)

	const workers = 8
	results := make([]OrchestrationResult, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = f.orchestrator.EnsureOrchestrated(context.Background(), asset)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, result := range results {
		assert.Contains(t, []OrchestrationResult{ResultOrchestrated, ResultAlreadyOrchestrated}, result)
	}
	assert.Equal(t, "s3://storage/"+id.String(), asset.Location)
}

func TestEnsureOrchestrated_LockTimeoutStillCompletes(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "contended"}
	asset := f.seed(t, id, "jp2-bytes")

	keyed := locks.New()
	impatient := NewOrchestrator(newTestTracker(t, f.catalog), keyed, f.store,
		storage.NewFastDisk(f.root), f.keys, f.engine, 20*time.Millisecond, logger.NewNop())

	// Another holder sits on the key without ever producing the file; the
	// caller degrades to a lockless copy instead of waiting forever
	holder, err := keyed.Acquire(context.Background(), id.String())
	require.NoError(t, err)
	defer holder.Release()

	result := impatient.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultOrchestrated, result)

	data, err := os.ReadFile(f.keys.LocalPath(id.String()))
	require.NoError(t, err)
	assert.Equal(t, "jp2-bytes", string(data))
}

func TestEnsureOrchestrated_ReingestRecoversLocation(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "stale"}

	// Catalog starts with no backing location
	record := testRecord(id)
	record.Location = ""
	f.catalog.add(record)

	// When the engine is called, the catalog learns the location and the
	// bytes appear in the store
	f.engine.onCall = func() {
		fresh := testRecord(id)
		f.catalog.add(fresh)
		ref, _ := storage.ParseURI(fresh.Location)
		f.store.Put(context.Background(), ref, strings.NewReader("recovered"), "image/jp2")
	}

	asset := &models.OrchestrationAsset{AssetID: id, Channels: models.ChannelImage}
	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultOrchestrated, result)
	assert.Equal(t, int64(1), f.engine.calls.Load())

	data, err := os.ReadFile(f.keys.LocalPath(id.String()))
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(data))
}

func TestEnsureOrchestrated_ReingestStillNoLocation(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "lost"}

	record := testRecord(id)
	record.Location = ""
	f.catalog.add(record)

	asset := &models.OrchestrationAsset{AssetID: id, Channels: models.ChannelImage}
	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultNotFound, result)
}

func TestEnsureOrchestrated_EngineFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "stuck"}

	record := testRecord(id)
	record.Location = ""
	f.catalog.add(record)
	f.engine.ok = false

	asset := &models.OrchestrationAsset{AssetID: id, Channels: models.ChannelImage}
	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultError, result)
}

func TestEnsureOrchestrated_MissingObjectIsError(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "ghost"}
	f.catalog.add(testRecord(id))

	asset := &models.OrchestrationAsset{
		AssetID:  id,
		Channels: models.ChannelImage,
		Location: "s3://storage/" + id.String(),
	}
	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultError, result)

	// No marker file may exist after a failed copy
	_, err := os.Stat(f.keys.LocalPath(id.String()))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureOrchestrated_EmptyStreamIsError(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "empty"}
	asset := f.seed(t, id, "")

	result := f.orchestrator.EnsureOrchestrated(context.Background(), asset)
	assert.Equal(t, ResultError, result)

	_, err := os.Stat(f.keys.LocalPath(id.String()))
	assert.True(t, os.IsNotExist(err), "empty copy must not leave an orchestrated marker")
}

func TestEnsureOrchestrated_CancelledContext(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "cancelled"}
	asset := f.seed(t, id, "jp2-bytes")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.orchestrator.EnsureOrchestrated(ctx, asset)
	assert.Equal(t, ResultError, result)
}

func TestEnsureOrchestrated_InvalidLocation(t *testing.T) {
	f := newOrchestratorFixture(t)
	id := models.AssetID{Customer: 2, Space: 1, Name: "bad-uri"}
	f.catalog.add(testRecord(id))

	asset := &models.OrchestrationAsset{
		AssetID:  id,
		Channels: models.ChannelImage,
		Location: "not-a-uri",
	}
	assert.Equal(t, ResultError, f.orchestrator.EnsureOrchestrated(context.Background(), asset))
}

func TestFastDiskWriteStream_PartialNeverVisible(t *testing.T) {
	root := t.TempDir()
	fast := storage.NewFastDisk(root)
	path := filepath.Join(root, "2", "1", "partial")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fast.WriteStream(ctx, path, bytes.NewReader([]byte("data")))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

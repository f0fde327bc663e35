package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/cache"
	"github.com/lumina/orchestrator/common/logger"
)

// mockCatalog is an in-memory Catalog for tests
type mockCatalog struct {
	mu       sync.Mutex
	records  map[string]*models.AssetRecord
	getCalls atomic.Int64
	err      error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{records: make(map[string]*models.AssetRecord)}
}

func (m *mockCatalog) add(record *models.AssetRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID.String()] = record
}

func (m *mockCatalog) remove(id models.AssetID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id.String())
}

func (m *mockCatalog) GetAsset(ctx context.Context, id models.AssetID) (*models.AssetRecord, error) {
	m.getCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id.String()], nil
}

func (m *mockCatalog) QueryAssets(ctx context.Context, q *models.ParsedNamedQuery) ([]models.AssetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetRecord
	for _, record := range m.records {
		out = append(out, *record)
	}
	return out, nil
}

func testRecord(id models.AssetID) *models.AssetRecord {
	return &models.AssetRecord{
		ID:               id,
		Width:            4000,
		Height:           3000,
		MaxUnauthorised:  -1,
		DeliveryChannels: models.ChannelImage,
		Location:         "s3://storage/" + id.String(),
		OpenThumbs:       []int{100, 400, 1024},
	}
}

func newTestTracker(t *testing.T, catalog Catalog) *AssetTracker {
	t.Helper()
	memCache := cache.NewMemoryCache(logger.NewNop())
	t.Cleanup(func() { memCache.Close() })
	return NewAssetTracker(catalog, memCache, 5*time.Minute, 30*time.Second, logger.NewNop())
}

func TestTrackerGet_ReadThrough(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "roll-1"}
	catalog := newMockCatalog()
	catalog.add(testRecord(id))
	tracker := newTestTracker(t, catalog)

	asset, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, id, asset.AssetID)
	assert.Equal(t, "s3://storage/2/1/roll-1", asset.Location)
	assert.False(t, asset.RequiresAuth)

	// Second read comes from cache
	_, err = tracker.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), catalog.getCalls.Load())
}

func TestTrackerGet_UnknownAssetCachesNullObject(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "missing"}
	catalog := newMockCatalog()
	tracker := newTestTracker(t, catalog)

	for i := 0; i < 3; i++ {
		asset, err := tracker.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, asset)
	}

	// Only the first miss hits the catalog; the null object absorbs the rest
	assert.Equal(t, int64(1), catalog.getCalls.Load())
}

func TestTrackerGet_NotForDeliveryTreatedAsMissing(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "withdrawn"}
	record := testRecord(id)
	record.NotForDelivery = true
	catalog := newMockCatalog()
	catalog.add(record)
	tracker := newTestTracker(t, catalog)

	asset, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestTrackerGet_CatalogErrorPropagates(t *testing.T) {
	catalog := newMockCatalog()
	catalog.err = errors.New("connection refused")
	tracker := newTestTracker(t, catalog)

	_, err := tracker.Get(context.Background(), models.AssetID{Customer: 2, Space: 1, Name: "x"})
	require.Error(t, err)
}

func TestTrackerGet_ComputesRequiresAuth(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "restricted"}
	record := testRecord(id)
	record.Roles = []string{"clickthrough"}
	record.MaxUnauthorised = 200
	catalog := newMockCatalog()
	catalog.add(record)
	tracker := newTestTracker(t, catalog)

	asset, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.True(t, asset.RequiresAuth)
	assert.Equal(t, 200, asset.MaxUnauthorised)
}

func TestTrackerRefresh_OverwritesCachedRecord(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "roll-1"}
	catalog := newMockCatalog()
	record := testRecord(id)
	record.Location = ""
	catalog.add(record)
	tracker := newTestTracker(t, catalog)

	asset, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Empty(t, asset.Location)

	// The catalog learns the location (e.g. after reingest)
	updated := testRecord(id)
	catalog.add(updated)

	refreshed, err := tracker.Refresh(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	assert.Equal(t, updated.Location, refreshed.Location)

	// And the refreshed record replaced the cached one
	cached, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, updated.Location, cached.Location)
}

func TestTrackerRefresh_GoneAssetReturnsNil(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "roll-1"}
	catalog := newMockCatalog()
	catalog.add(testRecord(id))
	tracker := newTestTracker(t, catalog)

	_, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)

	catalog.remove(id)
	refreshed, err := tracker.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, refreshed)
}

func TestTrackerGet_ConcurrentMissesCollapse(t *testing.T) {
	id := models.AssetID{Customer: 2, Space: 1, Name: "cold"}
	catalog := newMockCatalog()
	catalog.add(testRecord(id))
	tracker := newTestTracker(t, catalog)

	const workers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			asset, err := tracker.Get(context.Background(), id)
			assert.NoError(t, err)
			assert.NotNil(t, asset)
		}()
	}
	close(start)
	wg.Wait()

	// All workers raced the same cold key; singleflight plus the in-flight
	// cache recheck keeps catalog reads well below the worker count
	assert.LessOrEqual(t, catalog.getCalls.Load(), int64(2))
}

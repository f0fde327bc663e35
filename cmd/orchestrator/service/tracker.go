package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/cache"
	"github.com/lumina/orchestrator/common/logger"
)

// Catalog is the asset catalog collaborator consumed by the tracker and
// named-query conductor
type Catalog interface {
	GetAsset(ctx context.Context, id models.AssetID) (*models.AssetRecord, error)
	QueryAssets(ctx context.Context, q *models.ParsedNamedQuery) ([]models.AssetRecord, error)
}

// Null object cached for a short duration so repeated requests for unknown
// assets don't hammer the catalog
var nullAsset = &models.OrchestrationAsset{
	AssetID: models.AssetID{Customer: -1, Space: -1, Name: "__notfound__"},
}

// AssetTracker is a short-TTL read-through cache mapping an asset id to its
// orchestration record. Concurrent misses for the same cold key are
// collapsed into a single catalog read.
type AssetTracker struct {
	catalog     Catalog
	cache       cache.Cache
	group       singleflight.Group
	assetTTL    time.Duration
	notFoundTTL time.Duration
	log         *logger.Logger
}

// NewAssetTracker creates a new asset tracker
func NewAssetTracker(catalog Catalog, c cache.Cache, assetTTL, notFoundTTL time.Duration, log *logger.Logger) *AssetTracker {
	return &AssetTracker{
		catalog:     catalog,
		cache:       c,
		assetTTL:    assetTTL,
		notFoundTTL: notFoundTTL,
		log:         log,
	}
}

// Get returns the tracked record for an asset, reading through to the
// catalog on a cold key. Returns (nil, nil) for unknown assets.
func (t *AssetTracker) Get(ctx context.Context, id models.AssetID) (*models.OrchestrationAsset, error) {
	key := trackerCacheKey(id)
	if cached, ok := t.cache.Get(ctx, key); ok {
		return unwrapTracked(cached), nil
	}

	result, err, _ := t.group.Do(key, func() (any, error) {
		// Another flight may have populated the cache while we queued
		if cached, ok := t.cache.Get(ctx, key); ok {
			return cached, nil
		}
		return t.populate(ctx, id, key)
	})
	if err != nil {
		return nil, err
	}
	return unwrapTracked(result), nil
}

// Refresh forces a catalog re-read and overwrites the cached record,
// returning (nil, nil) if the asset no longer exists. Used after a
// re-ingest has been triggered.
func (t *AssetTracker) Refresh(ctx context.Context, id models.AssetID) (*models.OrchestrationAsset, error) {
	asset, err := t.populate(ctx, id, trackerCacheKey(id))
	if err != nil {
		return nil, err
	}
	return unwrapTracked(asset), nil
}

func (t *AssetTracker) populate(ctx context.Context, id models.AssetID, key string) (*models.OrchestrationAsset, error) {
	t.log.Debug("refreshing tracked asset", "asset_id", id.String())

	record, err := t.catalog.GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog for %s: %w", id, err)
	}

	if record == nil || record.NotForDelivery {
		t.log.Debug("asset not found, caching null object", "asset_id", id.String())
		t.cache.Set(ctx, key, nullAsset, t.notFoundTTL)
		return nullAsset, nil
	}

	asset := convertRecord(id, record)
	t.cache.Set(ctx, key, asset, t.assetTTL)
	return asset, nil
}

// convertRecord builds the tracked view of a catalog record. RequiresAuth
// is computed once here, not re-derived per request.
func convertRecord(id models.AssetID, record *models.AssetRecord) *models.OrchestrationAsset {
	return &models.OrchestrationAsset{
		AssetID:         id,
		Channels:        record.DeliveryChannels,
		Roles:           record.Roles,
		RequiresAuth:    record.RequiresAuth(),
		MaxUnauthorised: record.MaxUnauthorised,
		Width:           record.Width,
		Height:          record.Height,
		Duration:        record.Duration,
		Location:        record.Location,
		OpenThumbs:      record.OpenThumbs,
	}
}

func trackerCacheKey(id models.AssetID) string {
	return "track:" + id.String()
}

func unwrapTracked(v any) *models.OrchestrationAsset {
	asset, ok := v.(*models.OrchestrationAsset)
	if !ok || asset == nil || asset.AssetID == nullAsset.AssetID {
		return nil
	}
	return asset
}

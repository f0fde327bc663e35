package service

import (
	"context"
	"time"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/clients"
	"github.com/lumina/orchestrator/common/locks"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// OrchestrationResult is the outcome of a materialization attempt
type OrchestrationResult int

const (
	// ResultAlreadyOrchestrated means the asset was already on fast storage
	ResultAlreadyOrchestrated OrchestrationResult = iota
	// ResultOrchestrated means this call copied the asset to fast storage
	ResultOrchestrated
	// ResultNotFound means the asset has no backing location even after reingest
	ResultNotFound
	// ResultError means a backing-store or engine failure occurred
	ResultError
)

func (r OrchestrationResult) String() string {
	switch r {
	case ResultAlreadyOrchestrated:
		return "already-orchestrated"
	case ResultOrchestrated:
		return "orchestrated"
	case ResultNotFound:
		return "not-found"
	default:
		return "error"
	}
}

// Orchestrator copies asset bytes from slow object storage to fast local
// storage, at most once concurrently per asset key
type Orchestrator struct {
	tracker     *AssetTracker
	locks       *locks.KeyedLock
	store       storage.ObjectStore
	fast        *storage.FastDisk
	keys        *storage.KeyGenerator
	engine      clients.EngineAPI
	lockTimeout time.Duration
	log         *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	tracker *AssetTracker,
	keyedLock *locks.KeyedLock,
	store storage.ObjectStore,
	fast *storage.FastDisk,
	keys *storage.KeyGenerator,
	engine clients.EngineAPI,
	lockTimeout time.Duration,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		tracker:     tracker,
		locks:       keyedLock,
		store:       store,
		fast:        fast,
		keys:        keys,
		engine:      engine,
		lockTimeout: lockTimeout,
		log:         log,
	}
}

// EnsureOrchestrated makes sure the asset's bytes are present on fast
// storage. Store and engine failures are converted to ResultError here -
// this runs inline in the request path and must never panic upward.
// The tracked record is shared between concurrent requests and is never
// written to; progress is expressed through the returned result only.
func (o *Orchestrator) EnsureOrchestrated(ctx context.Context, asset *models.OrchestrationAsset) OrchestrationResult {
	assetKey := asset.AssetID.String()
	localPath := o.keys.LocalPath(assetKey)
	log := o.log.WithAssetID(assetKey)

	// Fast path: no lock taken when the file is already on disk
	if o.fast.Exists(localPath) {
		o.fast.Touch(localPath)
		return ResultAlreadyOrchestrated
	}

	guard, err := o.locks.AcquireTimeout(ctx, assetKey, o.lockTimeout)
	if err != nil {
		log.Warn("orchestration cancelled waiting for lock", "error", err)
		return ResultError
	}
	defer guard.Release()

	if !guard.HaveLock() {
		log.Warn("proceeding without lock after timeout")
	}

	// Double-check after the wait: another holder may have finished the
	// copy while we queued
	if o.fast.Exists(localPath) {
		o.fast.Touch(localPath)
		return ResultAlreadyOrchestrated
	}

	if asset.Location == "" {
		refreshed, result := o.reingest(ctx, asset.AssetID)
		if result != ResultOrchestrated {
			return result
		}
		asset = refreshed
	}

	if result := o.copyToFastDisk(ctx, asset, localPath); result != ResultOrchestrated {
		return result
	}

	return ResultOrchestrated
}

// reingest asks the engine to re-ingest an asset whose backing location is
// unknown, then refreshes the tracked record. Returns ResultOrchestrated
// with the refreshed asset when the location is now known.
func (o *Orchestrator) reingest(ctx context.Context, id models.AssetID) (*models.OrchestrationAsset, OrchestrationResult) {
	assetKey := id.String()
	o.log.Info("asset has no backing location, reingesting", "asset_id", assetKey)

	ok, err := o.engine.ReingestAsset(ctx, assetKey)
	if err != nil {
		o.log.Error("reingest call failed", "asset_id", assetKey, "error", err)
		return nil, ResultError
	}
	if !ok {
		o.log.Warn("engine could not reingest asset", "asset_id", assetKey)
		return nil, ResultError
	}

	refreshed, err := o.tracker.Refresh(ctx, id)
	if err != nil {
		o.log.Error("failed to refresh tracked asset after reingest", "asset_id", assetKey, "error", err)
		return nil, ResultError
	}
	if refreshed == nil || refreshed.Location == "" {
		o.log.Warn("asset still has no backing location after reingest", "asset_id", assetKey)
		return nil, ResultNotFound
	}
	return refreshed, ResultOrchestrated
}

func (o *Orchestrator) copyToFastDisk(ctx context.Context, asset *models.OrchestrationAsset, localPath string) OrchestrationResult {
	assetKey := asset.AssetID.String()

	ref, err := storage.ParseURI(asset.Location)
	if err != nil {
		o.log.Error("invalid backing location", "asset_id", assetKey, "location", asset.Location, "error", err)
		return ResultError
	}

	stream, err := o.store.Get(ctx, ref)
	if err != nil {
		o.log.Error("failed to fetch asset from backing store", "asset_id", assetKey, "location", asset.Location, "error", err)
		return ResultError
	}
	defer stream.Close()

	written, err := o.fast.WriteStream(ctx, localPath, stream)
	if err != nil {
		// WriteStream discards the partial file, so no false Orchestrated
		// marker is left behind
		o.log.Error("failed to write asset to fast storage", "asset_id", assetKey, "error", err)
		return ResultError
	}
	if written == 0 {
		o.log.Error("backing store returned empty stream", "asset_id", assetKey, "location", asset.Location)
		o.fast.Remove(localPath)
		return ResultError
	}

	o.log.Debug("asset copied to fast storage", "asset_id", assetKey, "bytes", written)
	return ResultOrchestrated
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/locks"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// ProjectionStatus describes the serveability of a stored projection
type ProjectionStatus int

const (
	// ProjectionAvailable means the payload is valid and streaming
	ProjectionAvailable ProjectionStatus = iota
	// ProjectionInProcess means another worker is generating the payload
	ProjectionInProcess
	// ProjectionRestricted means the caller may not view the projection
	ProjectionRestricted
	// ProjectionNotFound means the query matched no assets
	ProjectionNotFound
	// ProjectionError means generation or storage failed
	ProjectionError
)

// StoredResult is the outcome of a projection request. Stream is non-nil
// only when Status is ProjectionAvailable; the caller owns closing it.
type StoredResult struct {
	Stream       io.ReadCloser
	Status       ProjectionStatus
	Size         int64
	RequiresAuth bool
}

// ProjectionCreator generates a projection payload and writes its control
// file lifecycle (InProcess on entry, completed on success). A failed
// generation leaves the control file InProcess; the staleness threshold is
// the sole recovery path.
type ProjectionCreator interface {
	Generate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord) (*models.ControlFile, error)
}

// ProjectionManager serves stored projections (pdf, zip), regenerating
// them when missing or stale and collapsing concurrent regenerations of
// the same key onto a single worker
type ProjectionManager struct {
	store       storage.ObjectStore
	keys        *storage.KeyGenerator
	validator   Validator
	locks       *locks.KeyedLock
	staleSecs   int
	now         func() time.Time
	log         *logger.Logger
}

// NewProjectionManager creates a new projection manager
func NewProjectionManager(
	store storage.ObjectStore,
	keys *storage.KeyGenerator,
	validator Validator,
	keyedLock *locks.KeyedLock,
	staleSecs int,
	log *logger.Logger,
) *ProjectionManager {
	return &ProjectionManager{
		store:     store,
		keys:      keys,
		validator: validator,
		locks:     keyedLock,
		staleSecs: staleSecs,
		now:       time.Now,
		log:       log,
	}
}

// GetOrCreate returns the projection for pq, generating it first when the
// control file is missing, stale or its payload has gone
func (m *ProjectionManager) GetOrCreate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord, creator ProjectionCreator, creds models.Credentials) *StoredResult {
	cf, err := m.readControlFile(ctx, pq.StorageKey)
	if err != nil {
		m.log.Error("failed to read control file", "key", pq.ControlFileKey, "error", err)
		return &StoredResult{Status: ProjectionError}
	}

	if cf != nil && !cf.IsStale(m.staleSecs, m.now()) {
		if cf.InProcess {
			return &StoredResult{Status: ProjectionInProcess}
		}
		if result := m.serve(ctx, pq, cf, creds); result != nil {
			return result
		}
		// Control file claims completion but the payload is gone;
		// fall through and regenerate
		m.log.Warn("control file valid but payload missing, regenerating", "key", pq.StorageKey)
	}

	return m.regenerate(ctx, pq, assets, creator, creds)
}

func (m *ProjectionManager) regenerate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord, creator ProjectionCreator, creds models.Credentials) *StoredResult {
	guard, err := m.locks.Acquire(ctx, pq.ControlFileKey)
	if err != nil {
		m.log.Warn("projection generation cancelled waiting for lock", "key", pq.ControlFileKey, "error", err)
		return &StoredResult{Status: ProjectionError}
	}
	defer guard.Release()

	// Double-check under the lock: the previous holder may have finished
	// the regeneration we queued for
	cf, err := m.readControlFile(ctx, pq.StorageKey)
	if err != nil {
		m.log.Error("failed to re-read control file", "key", pq.ControlFileKey, "error", err)
		return &StoredResult{Status: ProjectionError}
	}
	if cf != nil && !cf.InProcess && !cf.IsStale(m.staleSecs, m.now()) {
		if result := m.serve(ctx, pq, cf, creds); result != nil {
			return result
		}
	}

	// A stale InProcess marker usually means a crashed worker, but the
	// generation may also have completed after the marker went stale
	if cf != nil && cf.InProcess {
		if recovered := m.recoverLateCompletion(ctx, pq, cf); recovered != nil {
			return m.serveOrError(ctx, pq, recovered, creds)
		}
	}

	if len(assets) == 0 {
		m.log.Debug("projection query matched no assets", "key", pq.StorageKey)
		return &StoredResult{Status: ProjectionNotFound}
	}

	created, err := creator.Generate(ctx, pq, assets)
	if err != nil {
		// The control file stays InProcess; staleness will allow a retry
		m.log.Error("projection generation failed", "key", pq.StorageKey, "error", err)
		return &StoredResult{Status: ProjectionError}
	}
	return m.serveOrError(ctx, pq, created, creds)
}

// recoverLateCompletion checks whether a payload newer than a stale
// InProcess control file exists, meaning the generation did finish but
// the completion write was lost. Returns the repaired control file.
func (m *ProjectionManager) recoverLateCompletion(ctx context.Context, pq *models.StoredParsedNamedQuery, cf *models.ControlFile) *models.ControlFile {
	info, err := m.store.Stat(ctx, m.keys.OutputLocation(pq.StorageKey))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Error("failed to stat projection payload", "key", pq.StorageKey, "error", err)
		}
		return nil
	}
	if !info.LastModified.After(cf.Created) {
		return nil
	}

	m.log.Info("recovering late-completed projection", "key", pq.StorageKey)
	cf.Exists = true
	cf.InProcess = false
	cf.SizeBytes = info.Size
	cf.LastChecked = m.now()
	if err := m.writeControlFile(ctx, pq.StorageKey, cf); err != nil {
		m.log.Error("failed to repair control file", "key", pq.ControlFileKey, "error", err)
		return nil
	}
	return cf
}

// serve validates access and opens the payload stream. Returns nil when
// the payload is missing so the caller can regenerate.
func (m *ProjectionManager) serve(ctx context.Context, pq *models.StoredParsedNamedQuery, cf *models.ControlFile, creds models.Credentials) *StoredResult {
	if cf.RequiresAuth() {
		result := m.validator.Validate(ctx, pq.Customer, cf.Roles, MechanismAll, creds)
		if result == AccessUnauthorized {
			return &StoredResult{Status: ProjectionRestricted, RequiresAuth: true}
		}
	}

	stream, err := m.store.Get(ctx, m.keys.OutputLocation(pq.StorageKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.log.Error("failed to open projection payload", "key", pq.StorageKey, "error", err)
		return &StoredResult{Status: ProjectionError}
	}
	return &StoredResult{
		Stream:       stream,
		Status:       ProjectionAvailable,
		Size:         cf.SizeBytes,
		RequiresAuth: cf.RequiresAuth(),
	}
}

func (m *ProjectionManager) serveOrError(ctx context.Context, pq *models.StoredParsedNamedQuery, cf *models.ControlFile, creds models.Credentials) *StoredResult {
	if result := m.serve(ctx, pq, cf, creds); result != nil {
		return result
	}
	m.log.Error("projection payload missing immediately after generation", "key", pq.StorageKey)
	return &StoredResult{Status: ProjectionError}
}

// Describe returns the current control file for pq without triggering
// generation. Returns (nil, nil) when none exists yet.
func (m *ProjectionManager) Describe(ctx context.Context, pq *models.StoredParsedNamedQuery) (*models.ControlFile, error) {
	return m.readControlFile(ctx, pq.StorageKey)
}

func (m *ProjectionManager) readControlFile(ctx context.Context, storageKey string) (*models.ControlFile, error) {
	ref := m.keys.ControlFileLocation(storageKey)
	stream, err := m.store.Get(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var cf models.ControlFile
	if err := json.NewDecoder(stream).Decode(&cf); err != nil {
		return nil, fmt.Errorf("corrupt control file %s: %w", ref.Key, err)
	}
	return &cf, nil
}

func (m *ProjectionManager) writeControlFile(ctx context.Context, storageKey string, cf *models.ControlFile) error {
	payload, err := json.Marshal(cf)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, m.keys.ControlFileLocation(storageKey), bytes.NewReader(payload), "application/json")
}

package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore used in tests
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
	now     func() time.Time

	// GetCount tracks Get calls per ref string
	GetCount map[string]int
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]*memObject),
		now:      time.Now,
		GetCount: make(map[string]int),
	}
}

// SetClock overrides the clock used for LastModified stamps
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MemoryStore) Get(ctx context.Context, ref ObjectRef) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCount[ref.String()]++
	obj, ok := m.objects[ref.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Put(ctx context.Context, ref ObjectRef, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ref.String()] = &memObject{
		data:        data,
		contentType: contentType,
		modified:    m.now(),
	}
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, src, dst ObjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[src.String()]
	if !ok {
		return ErrNotFound
	}
	m.objects[dst.String()] = &memObject{
		data:        append([]byte(nil), obj.data...),
		contentType: obj.contentType,
		modified:    m.now(),
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.objects, ObjectRef{Bucket: bucket, Key: key}.String())
	}
	return nil
}

func (m *MemoryStore) Stat(ctx context.Context, ref ObjectRef) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[ref.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &ObjectInfo{
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
	}, nil
}

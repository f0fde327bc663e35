package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/clients"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// capturingPDFGenerator records the playbook it was handed
type capturingPDFGenerator struct {
	playbook clients.FireballPlaybook
	fail     bool
}

func (g *capturingPDFGenerator) CreatePDF(ctx context.Context, playbook clients.FireballPlaybook) (*clients.FireballResponse, error) {
	g.playbook = playbook
	if g.fail {
		return &clients.FireballResponse{Success: false}, nil
	}
	return &clients.FireballResponse{Success: true, Size: 1234}, nil
}

func TestPDFCreator_PlaybookLayout(t *testing.T) {
	store := storage.NewMemoryStore()
	keys := storage.NewKeyGenerator("eu-west-1", "", "storage", "thumbs", "output", t.TempDir())
	generator := &capturingPDFGenerator{}
	creator := NewPDFCreator(store, keys, generator, logger.NewNop())

	assets := someAssets()
	assets[1].Roles = []string{"staff"}
	assets[1].MaxUnauthorised = 0

	pq := storedQuery("pdf/2/roll/vol-1")
	pq.ObjectName = "tome.pdf"

	cf, err := creator.Generate(context.Background(), pq, assets)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), cf.SizeBytes)
	assert.False(t, cf.InProcess)
	assert.True(t, cf.Exists)
	assert.Equal(t, []string{"staff"}, cf.Roles)

	playbook := generator.playbook
	assert.Equal(t, "s3://output/pdf/2/roll/vol-1", playbook.Output)
	assert.Equal(t, "tome.pdf", playbook.Title)
	require.Len(t, playbook.Pages, 2)

	// Open asset renders from its largest pregenerated thumb
	assert.Equal(t, "jpg", playbook.Pages[0].Type)
	assert.Equal(t, "s3://thumbs/2/1/a/full/1024.jpg", playbook.Pages[0].Source)

	// Restricted asset is redacted, never rendered
	assert.Equal(t, "redacted", playbook.Pages[1].Type)
}

func TestPDFCreator_GeneratorFailureLeavesInProcess(t *testing.T) {
	store := storage.NewMemoryStore()
	keys := storage.NewKeyGenerator("eu-west-1", "", "storage", "thumbs", "output", t.TempDir())
	creator := NewPDFCreator(store, keys, &capturingPDFGenerator{fail: true}, logger.NewNop())

	pq := storedQuery("pdf/2/roll/vol-1")
	_, err := creator.Generate(context.Background(), pq, someAssets())
	require.Error(t, err)

	// The InProcess marker written on entry is still there
	stream, err := store.Get(context.Background(), keys.ControlFileLocation(pq.StorageKey))
	require.NoError(t, err)
	data, _ := io.ReadAll(stream)
	stream.Close()
	assert.Contains(t, string(data), `"inProcess":true`)
}

func TestZipCreator_BuildsArchive(t *testing.T) {
	store := storage.NewMemoryStore()
	keys := storage.NewKeyGenerator("eu-west-1", "", "storage", "thumbs", "output", t.TempDir())
	creator := NewZipCreator(store, keys, t.TempDir(), logger.NewNop())

	assets := someAssets()
	assets[1].Roles = []string{"staff"}
	assets[1].MaxUnauthorised = 0
	for i := range assets {
		ref, err := storage.ParseURI(assets[i].Location)
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), ref,
			strings.NewReader("bytes-of-"+assets[i].ID.Name), "image/jp2"))
	}

	pq := storedQuery("zip/2/roll/vol-1")
	cf, err := creator.Generate(context.Background(), pq, assets)
	require.NoError(t, err)
	assert.True(t, cf.Exists)
	assert.Equal(t, 2, cf.ItemCount)

	stream, err := store.Get(context.Background(), keys.OutputLocation(pq.StorageKey))
	require.NoError(t, err)
	payload, err := io.ReadAll(stream)
	stream.Close()
	require.NoError(t, err)
	assert.Equal(t, cf.SizeBytes, int64(len(payload)))

	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	// Only the open asset made it into the archive
	require.Len(t, archive.File, 1)
	assert.Equal(t, "2/1/a", archive.File[0].Name)

	entry, err := archive.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(entry)
	entry.Close()
	require.NoError(t, err)
	assert.Equal(t, "bytes-of-a", string(content))
}

func TestZipCreator_MissingSourceFails(t *testing.T) {
	store := storage.NewMemoryStore()
	keys := storage.NewKeyGenerator("eu-west-1", "", "storage", "thumbs", "output", t.TempDir())
	creator := NewZipCreator(store, keys, t.TempDir(), logger.NewNop())

	pq := storedQuery("zip/2/roll/vol-1")
	_, err := creator.Generate(context.Background(), pq, someAssets())
	require.Error(t, err)
}

func TestDistinctRoles(t *testing.T) {
	assets := []models.AssetRecord{
		{ID: models.AssetID{Customer: 2, Space: 1, Name: "a"}, Roles: []string{"staff", "clickthrough"}, MaxUnauthorised: 0},
		{ID: models.AssetID{Customer: 2, Space: 1, Name: "b"}, Roles: []string{"staff"}, MaxUnauthorised: 0},
		{ID: models.AssetID{Customer: 2, Space: 1, Name: "c"}},
		// Roles present but delivery fully open below the threshold
		{ID: models.AssetID{Customer: 2, Space: 1, Name: "d"}, Roles: []string{"ignored"}, MaxUnauthorised: -1},
	}

	assert.Equal(t, []string{"staff", "clickthrough"}, distinctRoles(assets))
	assert.Nil(t, distinctRoles(assets[2:3]))
}

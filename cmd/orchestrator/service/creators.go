package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/clients"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// pdfPageEdge is the longest edge requested for PDF pages when an asset
// has no pregenerated thumbnail sizes
const pdfPageEdge = 1024

// projectionWriter owns the control-file lifecycle shared by all
// projection creators: mark InProcess, build the payload, mark complete.
// A build failure leaves the control file InProcess on purpose.
type projectionWriter struct {
	store storage.ObjectStore
	keys  *storage.KeyGenerator
	now   func() time.Time
	log   *logger.Logger
}

func (w *projectionWriter) generate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord, build func(context.Context) (int64, error)) (*models.ControlFile, error) {
	started := w.now()
	cf := &models.ControlFile{
		Key:         pq.StorageKey,
		InProcess:   true,
		Created:     started,
		LastChecked: started,
		ItemCount:   len(assets),
		Roles:       distinctRoles(assets),
	}
	if err := w.writeControlFile(ctx, pq.StorageKey, cf); err != nil {
		return nil, fmt.Errorf("failed to mark projection in process: %w", err)
	}

	size, err := build(ctx)
	if err != nil {
		return nil, err
	}

	cf.Exists = true
	cf.InProcess = false
	cf.SizeBytes = size
	cf.LastChecked = w.now()
	if err := w.writeControlFile(ctx, pq.StorageKey, cf); err != nil {
		return nil, fmt.Errorf("failed to mark projection complete: %w", err)
	}

	w.log.Info("projection generated",
		"key", pq.StorageKey, "items", cf.ItemCount, "bytes", cf.SizeBytes)
	return cf, nil
}

func (w *projectionWriter) writeControlFile(ctx context.Context, storageKey string, cf *models.ControlFile) error {
	payload, err := marshalControlFile(cf)
	if err != nil {
		return err
	}
	return w.store.Put(ctx, w.keys.ControlFileLocation(storageKey), payload, "application/json")
}

func marshalControlFile(cf *models.ControlFile) (io.Reader, error) {
	payload, err := json.Marshal(cf)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

// distinctRoles collects the union of roles across access-controlled
// assets, making the projection as restricted as its most restricted item
func distinctRoles(assets []models.AssetRecord) []string {
	seen := make(map[string]struct{})
	var roles []string
	for i := range assets {
		if !assets[i].RequiresAuth() {
			continue
		}
		for _, role := range assets[i].Roles {
			if _, ok := seen[role]; ok {
				continue
			}
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	return roles
}

// PDFCreator builds PDF projections by handing a page playbook to the
// fireball service, which writes the result straight to the output bucket
type PDFCreator struct {
	projectionWriter
	fireball clients.PDFGenerator
}

// NewPDFCreator creates a new PDF projection creator
func NewPDFCreator(store storage.ObjectStore, keys *storage.KeyGenerator, fireball clients.PDFGenerator, log *logger.Logger) *PDFCreator {
	return &PDFCreator{
		projectionWriter: projectionWriter{store: store, keys: keys, now: time.Now, log: log},
		fireball:         fireball,
	}
}

// Generate builds the PDF payload for pq from the selected assets
func (c *PDFCreator) Generate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord) (*models.ControlFile, error) {
	return c.generate(ctx, pq, assets, func(ctx context.Context) (int64, error) {
		playbook := c.buildPlaybook(pq, assets)
		resp, err := c.fireball.CreatePDF(ctx, playbook)
		if err != nil {
			return 0, err
		}
		if !resp.Success {
			return 0, errors.New("pdf generation reported failure")
		}
		return resp.Size, nil
	})
}

func (c *PDFCreator) buildPlaybook(pq *models.StoredParsedNamedQuery, assets []models.AssetRecord) clients.FireballPlaybook {
	title := pq.ObjectName
	if title == "" {
		title = pq.Name
	}

	pages := make([]clients.FireballPage, 0, len(assets))
	for i := range assets {
		record := &assets[i]
		if record.RequiresAuth() {
			// Restricted images are never rendered into the shared PDF
			pages = append(pages, clients.RedactedPage("Access restricted"))
			continue
		}
		thumb := c.keys.ThumbLocation(record.ID.String(), pageEdge(record))
		pages = append(pages, clients.ImagePage(c.keys.S3URI(thumb)))
	}

	return clients.FireballPlaybook{
		Output: c.keys.S3URI(c.keys.OutputLocation(pq.StorageKey)),
		Title:  title,
		Pages:  pages,
	}
}

// pageEdge picks the largest pregenerated thumbnail for a PDF page
func pageEdge(record *models.AssetRecord) int {
	edge := 0
	for _, size := range record.OpenThumbs {
		if size > edge {
			edge = size
		}
	}
	if edge == 0 {
		return pdfPageEdge
	}
	return edge
}

// ZipCreator builds zip projections by streaming asset bytes from the
// backing store into a scratch archive, then uploading it to the output
// bucket
type ZipCreator struct {
	projectionWriter
	scratchRoot string
}

// NewZipCreator creates a new zip projection creator
func NewZipCreator(store storage.ObjectStore, keys *storage.KeyGenerator, scratchRoot string, log *logger.Logger) *ZipCreator {
	return &ZipCreator{
		projectionWriter: projectionWriter{store: store, keys: keys, now: time.Now, log: log},
		scratchRoot:      scratchRoot,
	}
}

// Generate builds the zip payload for pq from the selected assets.
// Access-controlled assets are omitted from the archive entirely.
func (c *ZipCreator) Generate(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord) (*models.ControlFile, error) {
	return c.generate(ctx, pq, assets, func(ctx context.Context) (int64, error) {
		return c.buildArchive(ctx, pq, assets)
	})
}

func (c *ZipCreator) buildArchive(ctx context.Context, pq *models.StoredParsedNamedQuery, assets []models.AssetRecord) (int64, error) {
	scratch := filepath.Join(c.scratchRoot, uuid.New().String()+".zip")
	if err := os.MkdirAll(c.scratchRoot, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	file, err := os.Create(scratch)
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch archive: %w", err)
	}
	defer os.Remove(scratch)
	defer file.Close()

	archive := zip.NewWriter(file)
	for i := range assets {
		record := &assets[i]
		if record.RequiresAuth() {
			c.log.Debug("omitting restricted asset from archive",
				"asset_id", record.ID.String(), "key", pq.StorageKey)
			continue
		}
		if err := c.addEntry(ctx, archive, record); err != nil {
			archive.Close()
			return 0, err
		}
	}
	if err := archive.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	ref := c.keys.OutputLocation(pq.StorageKey)
	if err := c.store.Put(ctx, ref, file, "application/zip"); err != nil {
		return 0, fmt.Errorf("failed to upload archive: %w", err)
	}
	return info.Size(), nil
}

func (c *ZipCreator) addEntry(ctx context.Context, archive *zip.Writer, record *models.AssetRecord) error {
	location := c.keys.StorageLocation(record.ID.String())
	if record.Location != "" {
		if ref, err := storage.ParseURI(record.Location); err == nil {
			location = ref
		}
	}

	stream, err := c.store.Get(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to fetch %s for archive: %w", record.ID, err)
	}
	defer stream.Close()

	entry, err := archive.Create(record.ID.String())
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, stream)
	return err
}

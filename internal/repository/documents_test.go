package repository

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/docscan/docscan/internal/data"
	"github.com/docscan/docscan/internal/models"
	"github.com/docscan/docscan/internal/storage"
)

type fixture struct {
	repo  DocumentsRepository
	db    *gorm.DB
	store *storage.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, cleanup, err := data.Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	store, err := storage.NewService(dir, storage.DefaultThumbMaxEdge)
	require.NoError(t, err)

	return &fixture{
		repo:  NewDocumentsRepository(db, store),
		db:    db,
		store: store,
	}
}

func pageImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 250, G: 250, B: 245, A: 255}), image.Point{}, draw.Src)
	return img
}

func TestCreateWithFirstPageRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "Receipt", pageImage())
	require.NoError(t, err)

	got, found, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "Receipt", got.Title)
	assert.Equal(t, models.StatusReady, got.Status())
	assert.Empty(t, got.PDFPath)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, 0, got.Pages[0].Index)

	// The preview path must resolve to an existing thumbnail file.
	preview, err := f.store.Resolve(got.PreviewPath)
	require.NoError(t, err)
	assert.True(t, f.store.Exists(preview))

	full, err := f.store.Resolve(got.Pages[0].ImagePath)
	require.NoError(t, err)
	assert.True(t, f.store.Exists(full))
}

func TestFetchByIDAbsent(t *testing.T) {
	f := newFixture(t)
	doc, found, err := f.repo.FetchByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, doc)
}

func TestAppendPageIncrementsIndexAndInvalidatesPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "Contract", pageImage())
	require.NoError(t, err)

	_, err = f.repo.ExportPDF(ctx, doc.ID)
	require.NoError(t, err)

	page, err := f.repo.AppendPage(ctx, doc.ID, pageImage())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Index)

	got, found, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Pages, 2)
	assert.Empty(t, got.PDFPath, "append must clear the stale export path")
}

func TestConcurrentAppendsSerializePerDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "burst", pageImage())
	require.NoError(t, err)

	// Racing appends on one id must each observe a distinct page count,
	// yielding a gapless index sequence.
	const appends = 6
	var (
		mu      sync.Mutex
		indexes []int
		wg      sync.WaitGroup
	)
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := f.repo.AppendPage(ctx, doc.ID, pageImage())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			indexes = append(indexes, page.Index)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6}, indexes)

	got, found, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, got.Pages, appends+1)
}

func TestAppendPageToMissingDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.AppendPage(context.Background(), "missing", pageImage())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestFetchPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 65; i++ {
		_, err := f.repo.CreateWithFirstPage(ctx, fmt.Sprintf("Doc %02d", i), pageImage())
		require.NoError(t, err)
	}

	count, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 65, count)

	page0, err := f.repo.Fetch(ctx, 0, 30)
	require.NoError(t, err)
	assert.Len(t, page0, 30)

	page2, err := f.repo.Fetch(ctx, 2, 30)
	require.NoError(t, err)
	assert.Len(t, page2, 5)

	page3, err := f.repo.Fetch(ctx, 3, 30)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestFetchOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.repo.CreateWithFirstPage(ctx, "older", pageImage())
	require.NoError(t, err)
	// Force distinct timestamps regardless of clock resolution.
	require.NoError(t, f.db.Model(&models.Document{}).
		Where("id = ?", first.ID).
		Update("created_at", first.CreatedAt.Add(-time.Hour)).Error)

	_, err = f.repo.CreateWithFirstPage(ctx, "newer", pageImage())
	require.NoError(t, err)

	docs, err := f.repo.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "newer", docs[0].Title)
	assert.Equal(t, "older", docs[1].Title)
}

func TestSaveChangesUpdatesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "before", pageImage())
	require.NoError(t, err)

	doc.Title = "after"
	require.NoError(t, f.repo.SaveChanges(ctx, doc))

	got, _, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
}

func TestSaveChangesMissingIDIsNoOp(t *testing.T) {
	f := newFixture(t)
	err := f.repo.SaveChanges(context.Background(), &models.Document{ID: "missing", Title: "x"})
	assert.NoError(t, err)
}

func TestDeleteRemovesFilesAndMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "gone soon", pageImage())
	require.NoError(t, err)

	dir, err := f.store.DocumentDir(doc.ID)
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)

	require.NoError(t, f.repo.Delete(ctx, doc.ID))

	_, statErr = os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	_, found, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, found)

	var pages int64
	require.NoError(t, f.db.Model(&models.Page{}).Where("document_id = ?", doc.ID).Count(&pages).Error)
	assert.Zero(t, pages, "pages must cascade with the document")
}

func TestDeleteAbsentDocument(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.repo.Delete(context.Background(), "missing"))
}

func TestDeleteAllReturnsIDsAndEmptiesStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []string
	for i := 0; i < 3; i++ {
		doc, err := f.repo.CreateWithFirstPage(ctx, fmt.Sprintf("doc %d", i), pageImage())
		require.NoError(t, err)
		created = append(created, doc.ID)
	}

	ids, err := f.repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, created, ids)

	count, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	root, err := f.store.DocumentsRoot()
	require.NoError(t, err)
	entries, readErr := os.ReadDir(root)
	if readErr == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, os.IsNotExist(readErr))
	}
}

func TestExportPDFIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "export me", pageImage())
	require.NoError(t, err)

	rel1, err := f.repo.ExportPDF(ctx, doc.ID)
	require.NoError(t, err)

	after1, _, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)

	rel2, err := f.repo.ExportPDF(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, rel1, rel2)

	after2, _, err := f.repo.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, after1.PDFPath, after2.PDFPath)
	assert.Equal(t, after1.Status(), after2.Status())
	assert.Equal(t, models.StatusReady, after2.Status())

	path, err := f.store.Resolve(rel2)
	require.NoError(t, err)
	assert.True(t, f.store.Exists(path))
}

func TestExportPDFWithoutPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A draft row with no committed pages, inserted behind the
	// repository's back.
	doc := &models.Document{ID: "empty-doc", Title: "empty", StatusRaw: string(models.StatusDraft)}
	require.NoError(t, f.db.Create(doc).Error)

	_, err := f.repo.ExportPDF(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNoImages)

	path, rErr := f.store.Resolve(f.store.PDFPath(doc.ID))
	require.NoError(t, rErr)
	assert.False(t, f.store.Exists(path), "a failed export must not write files")
}

func TestGetPDFURLFastPathSkipsRegeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "cached", pageImage())
	require.NoError(t, err)

	rel, err := f.repo.ExportPDF(ctx, doc.ID)
	require.NoError(t, err)

	path, err := f.store.Resolve(rel)
	require.NoError(t, err)

	// Mutate the file out-of-band; a fast-path hit must leave it alone.
	sentinel := []byte("%PDF-sentinel")
	require.NoError(t, os.WriteFile(path, sentinel, 0o644))

	got, err := f.repo.GetPDFURL(ctx, doc.ID, rel)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sentinel, content)
}

func TestGetPDFURLRegeneratesEvictedExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.repo.CreateWithFirstPage(ctx, "evicted", pageImage())
	require.NoError(t, err)

	rel, err := f.repo.ExportPDF(ctx, doc.ID)
	require.NoError(t, err)
	path, err := f.store.Resolve(rel)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	got, err := f.repo.GetPDFURL(ctx, doc.ID, rel)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.True(t, f.store.Exists(got))
}

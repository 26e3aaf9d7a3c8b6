// Package repository orchestrates the document store: it owns the
// ordering between image writes, PDF exports and metadata commits so the
// metadata index never references files that were not fully written.
package repository

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/docscan/docscan/internal/models"
	"github.com/docscan/docscan/internal/storage"
)

// ErrDocumentNotFound reports an operation against an id with no
// metadata row.
var ErrDocumentNotFound = errors.New("document not found")

// exportLoadLimit bounds concurrent page-image loads during export.
const exportLoadLimit = 4

// DocumentsRepository is the consistency layer between the capture
// pipeline, the sandboxed file store and the metadata index. All
// operations are safe to call concurrently for different document ids;
// mutations on the same id are serialized internally.
type DocumentsRepository interface {
	CreateWithFirstPage(ctx context.Context, title string, img image.Image) (*models.Document, error)
	AppendPage(ctx context.Context, id string, img image.Image) (*models.Page, error)

	Fetch(ctx context.Context, page, pageSize int) ([]models.Document, error)
	FetchByID(ctx context.Context, id string) (*models.Document, bool, error)
	Count(ctx context.Context) (int64, error)

	SaveChanges(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) ([]string, error)

	ExportPDF(ctx context.Context, id string) (string, error)
	GetPDFURL(ctx context.Context, id, cachedPDFPath string) (string, error)
}

type documentsRepository struct {
	db    *gorm.DB
	store *storage.Service
	locks sync.Map // document id -> *sync.Mutex
}

func NewDocumentsRepository(db *gorm.DB, store *storage.Service) DocumentsRepository {
	return &documentsRepository{db: db, store: store}
}

// lock serializes mutations for one document id and returns the unlock.
func (r *documentsRepository) lock(id string) func() {
	v, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateWithFirstPage persists the full image and thumbnail first and
// only then inserts the Document and Page rows in one transaction. A
// failed image write therefore never leaves a metadata row pointing at a
// missing file; orphaned files from a failed attempt are tolerated
// because metadata is the source of truth for listing.
func (r *documentsRepository) CreateWithFirstPage(ctx context.Context, title string, img image.Image) (*models.Document, error) {
	docID := uuid.NewString()
	pageID := uuid.NewString()

	imagePath := fmt.Sprintf("documents/%s/%s.jpg", docID, pageID)
	thumbPath := fmt.Sprintf("documents/%s/%s-thumb.jpg", docID, pageID)

	if err := r.savePageImages(ctx, img, docID, pageID); err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &models.Document{
		ID:          docID,
		Title:       title,
		CreatedAt:   now,
		StatusRaw:   string(models.StatusReady),
		PreviewPath: thumbPath,
	}
	page := models.Page{
		ID:         pageID,
		CreatedAt:  now,
		Index:      0,
		ImagePath:  imagePath,
		ThumbPath:  thumbPath,
		DocumentID: docID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return tx.Create(&page).Error
	})
	if err != nil {
		return nil, fmt.Errorf("creating document %s: %w", docID, err)
	}

	doc.Pages = []models.Page{page}
	slog.Info("Document created.", "documentId", docID, "title", title)
	return doc, nil
}

// AppendPage adds the next page to an existing document. The stale PDF
// path is cleared in the same transaction so a later GetPDFURL
// regenerates the export instead of serving an outdated file.
func (r *documentsRepository) AppendPage(ctx context.Context, id string, img image.Image) (*models.Page, error) {
	unlock := r.lock(id)
	defer unlock()

	var doc models.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Page{}).Where("document_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}

	pageID := uuid.NewString()
	if err := r.savePageImages(ctx, img, id, pageID); err != nil {
		return nil, err
	}

	page := &models.Page{
		ID:         pageID,
		CreatedAt:  time.Now(),
		Index:      int(count),
		ImagePath:  fmt.Sprintf("documents/%s/%s.jpg", id, pageID),
		ThumbPath:  fmt.Sprintf("documents/%s/%s-thumb.jpg", id, pageID),
		DocumentID: id,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(page).Error; err != nil {
			return err
		}
		return tx.Model(&models.Document{}).Where("id = ?", id).Update("pdf_path", "").Error
	})
	if err != nil {
		return nil, fmt.Errorf("appending page to %s: %w", id, err)
	}

	slog.Info("Page appended.", "documentId", id, "pageId", pageID, "index", page.Index)
	return page, nil
}

// savePageImages writes the full-resolution image and its thumbnail in
// parallel; both must land before any metadata is touched.
func (r *documentsRepository) savePageImages(ctx context.Context, img image.Image, docID, pageID string) error {
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return r.store.SaveImage(img, docID, pageID+".jpg", false)
	})
	eg.Go(func() error {
		return r.store.SaveImage(img, docID, pageID+"-thumb.jpg", true)
	})
	return eg.Wait()
}

// Fetch returns one zero-based window of documents, newest first.
func (r *documentsRepository) Fetch(ctx context.Context, page, pageSize int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("fetching documents page %d: %w", page, err)
	}
	return docs, nil
}

// FetchByID loads one document with its pages in capture order. Absence
// is reported through the bool, not as an error.
func (r *documentsRepository) FetchByID(ctx context.Context, id string) (*models.Document, bool, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("page_index ASC") }).
		First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return &doc, true, nil
}

func (r *documentsRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Document{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// SaveChanges persists the document's mutable fields (currently the
// title). Updating a row that no longer exists is a silent no-op.
func (r *documentsRepository) SaveChanges(ctx context.Context, doc *models.Document) error {
	unlock := r.lock(doc.ID)
	defer unlock()

	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", doc.ID).
		Update("title", doc.Title).Error
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes the document directory first and only then the metadata
// row with its pages. If directory removal fails the whole delete fails,
// so metadata never outlives files still on disk.
func (r *documentsRepository) Delete(ctx context.Context, id string) error {
	unlock := r.lock(id)
	defer unlock()

	dir, err := r.store.DocumentDir(id)
	if err != nil {
		return err
	}
	if err := r.store.RemoveDocumentDir(dir); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	slog.Info("Document deleted.", "documentId", id)
	return nil
}

// DeleteAll removes the entire documents root, then batch-deletes every
// row in one transaction. The deleted ids are returned so in-memory
// caches can reconcile.
func (r *documentsRepository) DeleteAll(ctx context.Context) ([]string, error) {
	root, err := r.store.DocumentsRoot()
	if err != nil {
		return nil, err
	}
	if err := r.store.RemoveDocumentDir(root); err != nil {
		return nil, fmt.Errorf("deleting all documents: %w", err)
	}

	var ids []string
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Document{}).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Page{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Document{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("deleting all documents: %w", err)
	}

	slog.Info("All documents deleted.", "count", len(ids))
	return ids, nil
}

// ExportPDF renders the document's pages into a single PDF at the
// deterministic path and then commits the path and status in one
// transaction. The render phase completes before the metadata phase
// starts; a render failure leaves the metadata untouched. Re-exporting an
// unchanged page set regenerates the same file at the same path.
func (r *documentsRepository) ExportPDF(ctx context.Context, id string) (string, error) {
	unlock := r.lock(id)
	defer unlock()

	var pages []models.Page
	err := r.db.WithContext(ctx).
		Where("document_id = ?", id).
		Order("page_index ASC").
		Find(&pages).Error
	if err != nil {
		return "", fmt.Errorf("loading pages of %s: %w", id, err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("document %s: %w", id, storage.ErrNoImages)
	}

	// Load page images concurrently; a page that fails to load or decode
	// is skipped, not fatal, so one corrupt file cannot hold the rest of
	// the document hostage.
	loaded := make([]image.Image, len(pages))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(exportLoadLimit)
	for i, p := range pages {
		i, p := i, p
		eg.Go(func() error {
			img, err := r.store.LoadImage(p.ImagePath)
			if err != nil {
				slog.Warn("Skipping unreadable page image.", "documentId", id, "pageIndex", p.Index, "error", err)
				return nil
			}
			loaded[i] = img
			return nil
		})
	}
	_ = eg.Wait()

	images := make([]image.Image, 0, len(loaded))
	for _, img := range loaded {
		if img != nil {
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return "", fmt.Errorf("document %s: %w", id, storage.ErrNoImages)
	}

	rel := r.store.PDFPath(id)
	if err := r.store.SavePDF(images, rel); err != nil {
		return "", fmt.Errorf("exporting document %s: %w", id, err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Document{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"pdf_path": rel,
				"status":   string(models.StatusReady),
			}).Error
	})
	if err != nil {
		return "", fmt.Errorf("recording export of %s: %w", id, err)
	}

	slog.Info("Document exported.", "documentId", id, "pdfPath", rel, "pageCount", len(images))
	return rel, nil
}

// GetPDFURL resolves a usable PDF for the document. A still-existing
// cached export is returned as-is; otherwise the PDF is (re)generated,
// which lazily heals a document whose export was evicted or never made.
func (r *documentsRepository) GetPDFURL(ctx context.Context, id, cachedPDFPath string) (string, error) {
	if cachedPDFPath != "" {
		if path, err := r.store.Resolve(cachedPDFPath); err == nil && r.store.Exists(path) {
			return path, nil
		}
	}

	rel, err := r.ExportPDF(ctx, id)
	if err != nil {
		return "", err
	}
	return r.store.Resolve(rel)
}

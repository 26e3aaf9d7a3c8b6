package models

import "time"

// DocumentStatus is the lifecycle state of a document. It is persisted as
// a raw string; ParseStatus is total and never panics on corrupt input.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// ParseStatus maps a stored raw value onto the closed status set, falling
// back to draft for unknown or empty input.
func ParseStatus(raw string) DocumentStatus {
	switch DocumentStatus(raw) {
	case StatusDraft, StatusProcessing, StatusReady, StatusFailed:
		return DocumentStatus(raw)
	default:
		return StatusDraft
	}
}

// Document is the metadata record for one captured document. Paths are
// relative to the sandbox storage root; PDFPath stays empty until the
// first export.
type Document struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"index" json:"title"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	StatusRaw   string    `gorm:"column:status;default:'draft'" json:"status"`
	PDFPath     string    `gorm:"column:pdf_path" json:"pdfPath"`
	PreviewPath string    `json:"previewPath"`

	Pages []Page `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"pages,omitempty"`
}

// Status surfaces the raw column as the closed enum.
func (d *Document) Status() DocumentStatus {
	return ParseStatus(d.StatusRaw)
}

// Page is one captured page of a document. The back-reference to the
// parent is the id only; ownership runs Document -> Pages.
type Page struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Index      int       `gorm:"column:page_index" json:"index"`
	ImagePath  string    `json:"imagePath"`
	ThumbPath  string    `json:"thumbPath"`
	DocumentID string    `gorm:"index;size:36" json:"documentId"`
}

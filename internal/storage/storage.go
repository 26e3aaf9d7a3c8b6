// Package storage owns the on-disk layout for captured documents under a
// sandboxed root:
//
//	documents/<documentId>/<pageId>.jpg        full-resolution page, JPEG q=1.0
//	documents/<documentId>/<pageId>-thumb.jpg  thumbnail, longest edge 240px, q=0.8
//	documents/<documentId>/<documentId>.pdf    generated multi-page PDF
//
// All writes are atomic (temp file + rename); metadata elsewhere may
// therefore assume a referenced file is either fully present or absent.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	ErrRootUnavailable     = errors.New("storage root unavailable")
	ErrDirectoryCreate     = errors.New("directory creation failed")
	ErrEncodeFailed        = errors.New("JPEG encoding failed")
	ErrWriteFailed         = errors.New("file write failed")
	ErrDecodeFailed        = errors.New("image decode failed")
	ErrInvalidRelativePath = errors.New("invalid relative path")
	ErrFileNotFound        = errors.New("file not found")
	ErrPDFGeneration       = errors.New("PDF generation failed")
	ErrNoImages            = errors.New("no images")
)

const (
	documentsDirName = "documents"

	fullJPEGQuality  = 100
	thumbJPEGQuality = 80

	// DefaultThumbMaxEdge is the thumbnail's longer edge after scaling.
	DefaultThumbMaxEdge = 240
)

// Service resolves and manipulates files below the sandbox root. All
// operations are synchronous with respect to the file system and safe for
// concurrent use.
type Service struct {
	root         string
	thumbMaxEdge int
}

// NewService anchors a Service at root, creating it if needed.
func NewService(root string, thumbMaxEdge int) (*Service, error) {
	if root == "" {
		return nil, ErrRootUnavailable
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	if thumbMaxEdge <= 0 {
		thumbMaxEdge = DefaultThumbMaxEdge
	}
	return &Service{root: abs, thumbMaxEdge: thumbMaxEdge}, nil
}

// DocumentsRoot is the fixed documents folder below the sandbox root.
func (s *Service) DocumentsRoot() (string, error) {
	if s.root == "" {
		return "", ErrRootUnavailable
	}
	return filepath.Join(s.root, documentsDirName), nil
}

// DocumentDir is the per-document directory documents/<id>.
func (s *Service) DocumentDir(id string) (string, error) {
	root, err := s.DocumentsRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, id), nil
}

// Resolve joins a stored relative path onto the sandbox root. Empty
// input, absolute or separator-prefixed paths and paths that climb out of
// the root via ".." are rejected so corrupted metadata can never escape
// the sandbox.
func (s *Service) Resolve(rel string) (string, error) {
	trimmed := strings.TrimSpace(rel)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, string(os.PathSeparator)) || filepath.IsAbs(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelativePath, rel)
	}
	joined := filepath.Join(s.root, filepath.FromSlash(trimmed))
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelativePath, rel)
	}
	return joined, nil
}

// Exists reports whether path names a regular file. Directories do not
// count.
func (s *Service) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RemoveDocumentDir recursively deletes a document directory. Removing an
// absent directory is a no-op, which keeps deletion idempotent.
func (s *Service) RemoveDocumentDir(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// SaveImage encodes img as JPEG and writes it atomically into the
// document's directory. Thumbnails are first scaled so the longer edge
// equals the configured target, preserving aspect ratio.
func (s *Service) SaveImage(img image.Image, docID, fileName string, isThumb bool) error {
	dir, err := s.DocumentDir(docID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryCreate, dir, err)
	}

	quality := fullJPEGQuality
	if isThumb {
		b := img.Bounds()
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, s.thumbMaxEdge, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, s.thumbMaxEdge, imaging.Lanczos)
		}
		quality = thumbJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	if buf.Len() == 0 {
		return ErrEncodeFailed
	}

	target := filepath.Join(dir, fileName)
	if err := s.writeAtomic(target, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, target, err)
	}
	return nil
}

// LoadImage resolves a stored relative path and decodes the file.
func (s *Service) LoadImage(rel string) (image.Image, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if !s.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, path, err)
	}
	return img, nil
}

// SavePDF renders one PDF page per image, sized to that image's pixel
// dimensions and in input order, and writes the document atomically to
// the resolved relative path.
func (s *Service) SavePDF(images []image.Image, rel string) error {
	if len(images) == 0 {
		return ErrNoImages
	}
	path, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryCreate, filepath.Dir(path), err)
	}

	var buf bytes.Buffer
	if err := buildPDF(images, &buf); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPDFGeneration, path, err)
	}
	if err := s.writeAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	return nil
}

// PDFPath is the deterministic relative location of a document's export,
// independent of whether the file exists yet.
func (s *Service) PDFPath(id string) string {
	return fmt.Sprintf("%s/%s/%s.pdf", documentsDirName, id, id)
}

// writeAtomic writes data to a temp file in the target's directory and
// renames it into place, so a partially written file is never observable
// under the final name.
func (s *Service) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

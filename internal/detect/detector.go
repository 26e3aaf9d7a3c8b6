// Package detect finds a document's quadrilateral boundary in a still
// photo and rectifies the accepted region into an upright page image.
// Detection is single-shot per image; there is no frame tracking.
package detect

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/docscan/docscan/internal/geometry"
)

// ErrDecodeFailed reports that the input bitmap could not be decoded into
// a pixel buffer at all. Detection finding no rectangle is not an error.
var ErrDecodeFailed = errors.New("image decode failed")

// ImageCodec is the image decode/encode/transform capability the
// detector depends on.
type ImageCodec interface {
	Decode(raw []byte) (image.Image, error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
	Resize(img image.Image, maxEdge int) image.Image
	Orient(img image.Image, o Orientation) image.Image
}

// RectangleFinder locates the highest-confidence document boundary in an
// oriented image, or reports that none was found.
type RectangleFinder interface {
	Find(img image.Image) (geometry.Quad, bool)
}

// PerspectiveTransform warps the quad region of an image into an upright
// rectangle.
type PerspectiveTransform interface {
	Warp(img image.Image, q geometry.Quad) (image.Image, error)
}

// Detector is the capture-side entry point: DetectQuad proposes a
// boundary for the overlay, Rectify produces the corrected page image
// once the user accepts it.
type Detector struct {
	codec     ImageCodec
	finder    RectangleFinder
	transform PerspectiveTransform
}

func NewDetector(codec ImageCodec, finder RectangleFinder, transform PerspectiveTransform) *Detector {
	return &Detector{codec: codec, finder: finder, transform: transform}
}

// NewDefaultDetector wires the stdlib/imaging codec, the contour finder
// and the homography transform.
func NewDefaultDetector(minAreaFrac float64) *Detector {
	return NewDetector(StdCodec{}, NewContourFinder(minAreaFrac), HomographyTransform{})
}

// DetectQuad decodes raw, normalizes orientation and runs the rectangle
// finder. A nil quad with nil error means nothing was found above the
// finder's confidence threshold, a normal outcome the caller resolves by
// offering a retake or a use-as-is fallback.
func (d *Detector) DetectQuad(raw []byte, o Orientation) (*geometry.Quad, error) {
	img, err := d.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	oriented := d.codec.Orient(img, o)

	q, ok := d.finder.Find(oriented)
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// Rectify re-decodes raw with the same orientation handling used for
// detection, scales the accepted quad from point space into pixel space
// by pointScale, and applies the perspective correction. When the
// transform cannot be built or yields nothing, the oriented original is
// returned instead: losing geometric correction is preferable to losing
// the page.
func (d *Detector) Rectify(raw []byte, o Orientation, q geometry.Quad, pointScale float64) (image.Image, error) {
	img, err := d.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	oriented := d.codec.Orient(img, o)

	if pointScale > 0 && pointScale != 1 {
		q = q.Scale(pointScale)
	}

	out, err := d.transform.Warp(oriented, q)
	if err != nil || out == nil {
		slog.Warn("Perspective correction unavailable, keeping original image.", "error", err)
		return oriented, nil
	}
	return out, nil
}

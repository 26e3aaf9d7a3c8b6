package detect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Orientation is the EXIF-style orientation tag (1-8) supplied by the
// capture layer alongside the raw bitmap. Unknown values are treated as
// upright.
type Orientation int

const (
	OrientUp Orientation = iota + 1
	OrientUpMirrored
	OrientDown
	OrientDownMirrored
	OrientLeftMirrored
	OrientRight
	OrientRightMirrored
	OrientLeft
)

// StdCodec implements ImageCodec over the stdlib decoders and imaging.
type StdCodec struct{}

func (StdCodec) Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func (StdCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales img down so its longer edge equals maxEdge, preserving
// aspect ratio. Images already within the limit are returned unchanged.
func (StdCodec) Resize(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxEdge && b.Dy() <= maxEdge {
		return img
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, maxEdge, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxEdge, imaging.Lanczos)
}

// Orient normalizes img into upright display orientation. The same
// mapping is applied on detection and rectification so quad coordinates
// stay aligned with the displayed overlay.
func (StdCodec) Orient(img image.Image, o Orientation) image.Image {
	switch o {
	case OrientUpMirrored:
		return imaging.FlipH(img)
	case OrientDown:
		return imaging.Rotate180(img)
	case OrientDownMirrored:
		return imaging.FlipV(img)
	case OrientLeftMirrored:
		return imaging.Transpose(img)
	case OrientRight:
		return imaging.Rotate270(img)
	case OrientRightMirrored:
		return imaging.Transverse(img)
	case OrientLeft:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

package detect

import (
	"bytes"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscan/docscan/internal/geometry"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)))
	return buf.Bytes()
}

func TestDetectQuadRejectsUndecodableInput(t *testing.T) {
	d := NewDefaultDetector(0.2)
	_, err := d.DetectQuad([]byte("not an image"), OrientUp)
	assert.ErrorIs(t, err, ErrDecodeFailed)

	_, err = d.Rectify([]byte("not an image"), OrientUp, geometry.Quad{}, 1)
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestDetectQuadNotFoundIsNotAnError(t *testing.T) {
	blank := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	d := NewDefaultDetector(0.2)

	q, err := d.DetectQuad(encodeJPEG(t, blank), OrientUp)
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestDetectThenRectifyRoundTrip(t *testing.T) {
	raw := encodeJPEG(t, documentScene(400, 300, image.Rect(80, 60, 320, 240)))
	d := NewDefaultDetector(0.2)

	q, err := d.DetectQuad(raw, OrientUp)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.True(t, q.InBounds(400, 300))

	out, err := d.Rectify(raw, OrientUp, *q, 1)
	require.NoError(t, err)
	assert.Positive(t, out.Bounds().Dx())
	assert.Positive(t, out.Bounds().Dy())
}

func TestRectifyDegradesToOriginalOnDegenerateQuad(t *testing.T) {
	raw := encodeJPEG(t, documentScene(400, 300, image.Rect(80, 60, 320, 240)))
	d := NewDefaultDetector(0.2)

	degenerate := geometry.Quad{
		TopLeft:     geometry.Point{X: 5, Y: 5},
		TopRight:    geometry.Point{X: 5, Y: 5},
		BottomRight: geometry.Point{X: 5, Y: 5},
		BottomLeft:  geometry.Point{X: 5, Y: 5},
	}
	out, err := d.Rectify(raw, OrientUp, degenerate, 1)
	require.NoError(t, err)
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 300, out.Bounds().Dy())
}

func TestOrientSwapsAxesForRotations(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	c := StdCodec{}

	rotated := c.Orient(img, OrientRight)
	assert.Equal(t, 20, rotated.Bounds().Dx())
	assert.Equal(t, 40, rotated.Bounds().Dy())

	same := c.Orient(img, OrientUp)
	assert.Equal(t, 40, same.Bounds().Dx())
}

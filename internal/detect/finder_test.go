package detect

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// documentScene draws a bright page on a dark background, the shape the
// finder is built for.
func documentScene(w, h int, page image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 30, G: 30, B: 30, A: 255}), image.Point{}, draw.Src)
	draw.Draw(img, page, image.NewUniform(color.NRGBA{R: 245, G: 245, B: 240, A: 255}), image.Point{}, draw.Src)
	return img
}

func TestFindLocatesPageBoundary(t *testing.T) {
	page := image.Rect(80, 60, 320, 240)
	img := documentScene(400, 300, page)

	f := NewContourFinder(0.2)
	q, ok := f.Find(img)
	require.True(t, ok)

	assert.True(t, q.InBounds(400, 300))
	assert.InDelta(t, 80, q.TopLeft.X, 10)
	assert.InDelta(t, 60, q.TopLeft.Y, 10)
	assert.InDelta(t, 320, q.BottomRight.X, 10)
	assert.InDelta(t, 240, q.BottomRight.Y, 10)
}

func TestFindScalesResultToFullResolution(t *testing.T) {
	// Larger than the finder's working edge, so the quad must be mapped
	// back up to source coordinates.
	page := image.Rect(200, 150, 800, 600)
	img := documentScene(1000, 750, page)

	f := NewContourFinder(0.2)
	q, ok := f.Find(img)
	require.True(t, ok)

	assert.True(t, q.InBounds(1000, 750))
	assert.InDelta(t, 200, q.TopLeft.X, 25)
	assert.InDelta(t, 150, q.TopLeft.Y, 25)
	assert.InDelta(t, 800, q.BottomRight.X, 25)
	assert.InDelta(t, 600, q.BottomRight.Y, 25)
}

func TestFindRejectsFeaturelessImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 128, G: 128, B: 128, A: 255}), image.Point{}, draw.Src)

	f := NewContourFinder(0.2)
	_, ok := f.Find(img)
	assert.False(t, ok)
}

func TestFindRejectsSubjectBelowConfidenceFloor(t *testing.T) {
	// The page covers ~2% of the frame, well under the 20% floor.
	page := image.Rect(180, 140, 230, 180)
	img := documentScene(400, 300, page)

	f := NewContourFinder(0.2)
	_, ok := f.Find(img)
	assert.False(t, ok)
}

func TestFindTinyImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	f := NewContourFinder(0.2)
	_, ok := f.Find(img)
	assert.False(t, ok)
}

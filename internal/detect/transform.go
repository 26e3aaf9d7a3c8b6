package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"github.com/docscan/docscan/internal/geometry"
)

// HomographyTransform implements PerspectiveTransform with a direct
// linear transform: the 3x3 homography mapping the upright output
// rectangle onto the accepted quad is solved once, then every output
// pixel is inverse-mapped and bilinearly sampled from the source.
type HomographyTransform struct{}

// Warp produces the rectified page image sized by q.BoundingSize(). It
// returns an error when the homography system is singular (degenerate
// quad); the caller decides how to degrade.
func (HomographyTransform) Warp(img image.Image, q geometry.Quad) (image.Image, error) {
	w, h := q.BoundingSize()

	hm, err := solveHomography(
		[4]geometry.Point{
			{X: 0, Y: 0},
			{X: float64(w), Y: 0},
			{X: float64(w), Y: float64(h)},
			{X: 0, Y: float64(h)},
		},
		q.Corners(),
	)
	if err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy, ok := hm.apply(float64(x)+0.5, float64(y)+0.5)
			if !ok {
				continue
			}
			r, g, b, a, ok := bilinear(src.Pix, sw, sh, sx, sy)
			if !ok {
				continue
			}
			o := dst.PixOffset(x, y)
			dst.Pix[o+0] = r
			dst.Pix[o+1] = g
			dst.Pix[o+2] = b
			dst.Pix[o+3] = a
		}
	}
	return dst, nil
}

// homography holds the eight DLT coefficients; the ninth is fixed at 1.
type homography [8]float64

func (m homography) apply(x, y float64) (float64, float64, bool) {
	d := m[6]*x + m[7]*y + 1
	if math.Abs(d) < 1e-12 {
		return 0, 0, false
	}
	return (m[0]*x + m[1]*y + m[2]) / d, (m[3]*x + m[4]*y + m[5]) / d, true
}

// solveHomography finds H such that H maps each src corner onto the
// corresponding dst corner, via the standard 8x8 linear system.
func solveHomography(src, dst [4]geometry.Point) (homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{sx, sy, 1, 0, 0, 0, -sx * dx, -sy * dx})
		b.SetVec(2*i, dx)
		a.SetRow(2*i+1, []float64{0, 0, 0, sx, sy, 1, -sx * dy, -sy * dy})
		b.SetVec(2*i+1, dy)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return homography{}, fmt.Errorf("solving homography: %w", err)
	}

	var hm homography
	for i := range hm {
		hm[i] = x.AtVec(i)
	}
	return hm, nil
}

// bilinear samples NRGBA pixel data at a fractional coordinate. Samples
// outside the source bounds report false and leave the output pixel
// transparent.
func bilinear(pix []uint8, w, h int, x, y float64) (uint8, uint8, uint8, uint8, bool) {
	x -= 0.5
	y -= 0.5
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	if x0 < -1 || y0 < -1 || x0 >= w || y0 >= h {
		return 0, 0, 0, 0, false
	}
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) [4]float64 {
		if px < 0 {
			px = 0
		}
		if py < 0 {
			py = 0
		}
		if px >= w {
			px = w - 1
		}
		if py >= h {
			py = h - 1
		}
		o := (py*w + px) * 4
		return [4]float64{float64(pix[o]), float64(pix[o+1]), float64(pix[o+2]), float64(pix[o+3])}
	}

	c00 := at(x0, y0)
	c10 := at(x0+1, y0)
	c01 := at(x0, y0+1)
	c11 := at(x0+1, y0+1)

	var out [4]uint8
	for i := 0; i < 4; i++ {
		top := c00[i]*(1-fx) + c10[i]*fx
		bot := c01[i]*(1-fx) + c11[i]*fx
		out[i] = uint8(math.Round(top*(1-fy) + bot*fy))
	}
	return out[0], out[1], out[2], out[3], true
}

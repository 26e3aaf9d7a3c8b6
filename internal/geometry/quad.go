package geometry

import "math"

// Point is a 2-D coordinate in image pixel space (origin top-left, y down).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is a four-point polygon approximating a document boundary.
// Corners are ordered clockwise starting from the top-left, in the
// oriented source image's pixel coordinates. A Quad is ephemeral: it is
// produced per detection call and never persisted.
type Quad struct {
	TopLeft     Point `json:"topLeft"`
	TopRight    Point `json:"topRight"`
	BottomRight Point `json:"bottomRight"`
	BottomLeft  Point `json:"bottomLeft"`
}

// Scale returns a copy of q with every corner multiplied by f. Used to map
// between display points and device pixels; the same factor fed to
// detection output must be inverted when handing an accepted quad back for
// rectification.
func (q Quad) Scale(f float64) Quad {
	s := func(p Point) Point { return Point{X: p.X * f, Y: p.Y * f} }
	return Quad{
		TopLeft:     s(q.TopLeft),
		TopRight:    s(q.TopRight),
		BottomRight: s(q.BottomRight),
		BottomLeft:  s(q.BottomLeft),
	}
}

// FitToViewport maps q from image pixel space into a viewport that shows
// the image aspect-fitted and centered, which is how a capture overlay
// draws the detected boundary on screen.
func (q Quad) FitToViewport(imageW, imageH, viewW, viewH float64) Quad {
	scale := math.Min(viewW/imageW, viewH/imageH)
	xOffset := (viewW - imageW*scale) / 2
	yOffset := (viewH - imageH*scale) / 2

	m := func(p Point) Point {
		return Point{X: p.X*scale + xOffset, Y: p.Y*scale + yOffset}
	}
	return Quad{
		TopLeft:     m(q.TopLeft),
		TopRight:    m(q.TopRight),
		BottomRight: m(q.BottomRight),
		BottomLeft:  m(q.BottomLeft),
	}
}

// BoundingSize is the output rectangle for rectification: the width is the
// longer of the top and bottom edges, the height the longer of the left
// and right edges. Both are at least 1.
func (q Quad) BoundingSize() (int, int) {
	w := math.Max(dist(q.TopLeft, q.TopRight), dist(q.BottomLeft, q.BottomRight))
	h := math.Max(dist(q.TopLeft, q.BottomLeft), dist(q.TopRight, q.BottomRight))
	return max(1, int(math.Round(w))), max(1, int(math.Round(h)))
}

// InBounds reports whether every corner lies inside [0,w]x[0,h].
func (q Quad) InBounds(w, h float64) bool {
	for _, p := range q.Corners() {
		if p.X < 0 || p.Y < 0 || p.X > w || p.Y > h {
			return false
		}
	}
	return true
}

// Corners returns the four points in clockwise order from top-left.
func (q Quad) Corners() [4]Point {
	return [4]Point{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// OrderCorners builds a Quad from four unordered points using the
// sum/difference heuristic: the top-left corner minimizes x+y, the
// bottom-right maximizes it, the top-right minimizes y-x and the
// bottom-left maximizes it.
func OrderCorners(pts [4]Point) Quad {
	var q Quad
	minSum, maxSum := math.Inf(1), math.Inf(-1)
	minDiff, maxDiff := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		sum, diff := p.X+p.Y, p.Y-p.X
		if sum < minSum {
			minSum, q.TopLeft = sum, p
		}
		if sum > maxSum {
			maxSum, q.BottomRight = sum, p
		}
		if diff < minDiff {
			minDiff, q.TopRight = diff, p
		}
		if diff > maxDiff {
			maxDiff, q.BottomLeft = diff, p
		}
	}
	return q
}

// Area computes the polygon area via the shoelace formula.
func (q Quad) Area() float64 {
	c := q.Corners()
	var sum float64
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(sum) / 2
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

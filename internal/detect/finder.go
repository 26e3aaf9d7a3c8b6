package detect

import (
	"image"
	"math"
	"sort"

	"github.com/docscan/docscan/internal/geometry"
)

// finderWorkEdge bounds the working resolution of the finder. Detection
// runs on a downscaled copy and the winning quad is mapped back to full
// resolution.
const finderWorkEdge = 480

// ContourFinder locates the most likely document boundary in a still
// image: gradient edges are traced into connected components, each
// component's convex hull is simplified to a polygon, and the largest
// resulting quadrilateral above the area floor wins. Deterministic and
// single-shot; no tracking state survives a call.
type ContourFinder struct {
	// MinAreaFrac is the fraction of the image a candidate must cover.
	MinAreaFrac float64

	codec StdCodec
}

func NewContourFinder(minAreaFrac float64) *ContourFinder {
	return &ContourFinder{MinAreaFrac: minAreaFrac}
}

// Find returns the best quad in oriented-image pixel coordinates, or
// false when nothing clears the confidence floor.
func (f *ContourFinder) Find(img image.Image) (geometry.Quad, bool) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW < 4 || srcH < 4 {
		return geometry.Quad{}, false
	}

	work := f.codec.Resize(img, finderWorkEdge)
	wb := work.Bounds()
	w, h := wb.Dx(), wb.Dy()
	scale := float64(srcW) / float64(w)

	gray := grayscale(work)
	edges := sobelEdges(gray, w, h)
	dilate(edges, w, h)

	best := geometry.Quad{}
	bestArea := f.MinAreaFrac * float64(w) * float64(h)
	found := false

	minComponent := w + h
	for _, comp := range components(edges, w, h, minComponent) {
		hull := convexHull(comp)
		if len(hull) < 4 {
			continue
		}
		poly, ok := approxQuad(hull)
		if !ok {
			continue
		}
		q := geometry.OrderCorners(poly)
		if area := q.Area(); area > bestArea {
			bestArea = area
			best = q
			found = true
		}
	}
	if !found {
		return geometry.Quad{}, false
	}

	best = best.Scale(scale)
	best = clampQuad(best, float64(srcW), float64(srcH))
	return best, true
}

func grayscale(img image.Image) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[y*w+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return out
}

// sobelEdges computes gradient magnitude and binarizes it at twice the
// mean magnitude, which tracks overall image contrast without a tuned
// absolute threshold.
func sobelEdges(gray []float64, w, h int) []bool {
	mag := make([]float64, w*h)
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			gx := -gray[i-w-1] + gray[i-w+1] +
				-2*gray[i-1] + 2*gray[i+1] +
				-gray[i+w-1] + gray[i+w+1]
			gy := -gray[i-w-1] - 2*gray[i-w] - gray[i-w+1] +
				gray[i+w-1] + 2*gray[i+w] + gray[i+w+1]
			m := math.Hypot(gx, gy)
			mag[i] = m
			sum += m
		}
	}
	threshold := 2 * sum / float64(w*h)
	if threshold < 16 {
		threshold = 16
	}
	edges := make([]bool, w*h)
	for i, m := range mag {
		edges[i] = m >= threshold
	}
	return edges
}

func dilate(edges []bool, w, h int) {
	src := make([]bool, len(edges))
	copy(src, edges)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if src[y*w+x] {
				continue
			}
			i := y*w + x
			if src[i-1] || src[i+1] || src[i-w] || src[i+w] {
				edges[i] = true
			}
		}
	}
}

// components groups edge pixels by 8-connectivity and drops groups
// smaller than minSize, which filters texture noise before hull fitting.
func components(edges []bool, w, h, minSize int) [][]geometry.Point {
	visited := make([]bool, len(edges))
	var out [][]geometry.Point
	stack := make([]int, 0, 1024)

	for start, on := range edges {
		if !on || visited[start] {
			continue
		}
		var comp []geometry.Point
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			comp = append(comp, geometry.Point{X: float64(x), Y: float64(y)})
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if edges[j] && !visited[j] {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if len(comp) >= minSize {
			out = append(out, comp)
		}
	}
	return out
}

// convexHull is Andrew's monotone chain, returning points in
// counter-clockwise order without the duplicated endpoint.
func convexHull(pts []geometry.Point) []geometry.Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]geometry.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b geometry.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower, upper []geometry.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// approxQuad simplifies a convex hull down to exactly four corners with
// Douglas-Peucker, widening the tolerance until the polygon collapses to
// a quadrilateral or the attempt is abandoned.
func approxQuad(hull []geometry.Point) ([4]geometry.Point, bool) {
	if len(hull) == 4 {
		return [4]geometry.Point{hull[0], hull[1], hull[2], hull[3]}, true
	}
	perimeter := 0.0
	for i := range hull {
		j := (i + 1) % len(hull)
		perimeter += math.Hypot(hull[j].X-hull[i].X, hull[j].Y-hull[i].Y)
	}
	for eps := 0.01 * perimeter; eps <= 0.12*perimeter; eps *= 2 {
		poly := simplifyClosed(hull, eps)
		if len(poly) == 4 {
			return [4]geometry.Point{poly[0], poly[1], poly[2], poly[3]}, true
		}
		if len(poly) < 4 {
			break
		}
	}
	return [4]geometry.Point{}, false
}

// simplifyClosed runs Douglas-Peucker on a closed ring by splitting it at
// its two mutually farthest vertices and simplifying each open chain.
func simplifyClosed(ring []geometry.Point, eps float64) []geometry.Point {
	ai, bi := 0, 0
	maxD := -1.0
	for i := range ring {
		for j := i + 1; j < len(ring); j++ {
			d := math.Hypot(ring[j].X-ring[i].X, ring[j].Y-ring[i].Y)
			if d > maxD {
				maxD, ai, bi = d, i, j
			}
		}
	}
	chainA := append(append([]geometry.Point{}, ring[ai:bi]...), ring[bi])
	chainB := append(append([]geometry.Point{}, ring[bi:]...), ring[:ai+1]...)

	sa := douglasPeucker(chainA, eps)
	sb := douglasPeucker(chainB, eps)
	// Chain endpoints are shared; drop them from the second chain.
	out := append(sa, sb[1:len(sb)-1]...)
	return out
}

func douglasPeucker(pts []geometry.Point, eps float64) []geometry.Point {
	if len(pts) < 3 {
		return pts
	}
	idx, maxD := 0, 0.0
	a, b := pts[0], pts[len(pts)-1]
	for i := 1; i < len(pts)-1; i++ {
		if d := pointSegmentDist(pts[i], a, b); d > maxD {
			idx, maxD = i, d
		}
	}
	if maxD <= eps {
		return []geometry.Point{a, b}
	}
	left := douglasPeucker(pts[:idx+1], eps)
	right := douglasPeucker(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

func pointSegmentDist(p, a, b geometry.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

func clampQuad(q geometry.Quad, w, h float64) geometry.Quad {
	c := func(p geometry.Point) geometry.Point {
		return geometry.Point{
			X: math.Max(0, math.Min(w, p.X)),
			Y: math.Max(0, math.Min(h, p.Y)),
		}
	}
	return geometry.Quad{
		TopLeft:     c(q.TopLeft),
		TopRight:    c(q.TopRight),
		BottomRight: c(q.BottomRight),
		BottomLeft:  c(q.BottomLeft),
	}
}

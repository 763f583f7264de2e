package mandelring

// Plane is the rectangle of the complex plane being rendered: the upper left corner of the raster
// is (XMin, YMax), the lower right is (XMax, YMin).
type Plane struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
}

// DefaultPlane frames the whole Mandelbrot set on a 90x50 terminal.
var DefaultPlane = Plane{XMin: -1.8, XMax: 1.0, YMin: -1.0, YMax: 1.0}

// Point is one sample of the raster: the cell (Row, Col) and its coordinates on the plane.
type Point struct {
	Row, Col int
	X, Y     float64
}

// ColorFunc maps a sample point to a 256-colour xterm palette index. It must be pure: the same
// point always yields the same colour, whichever worker computes it.
type ColorFunc func(Point) uint8

// Point returns the sample for cell (row, col) of a width x height raster over p.
func (p Plane) Point(row, col, width, height int) Point {
	xstep := (p.XMax - p.XMin) / float64(width)
	ystep := (p.YMax - p.YMin) / float64(height)
	return Point{
		Row: row,
		Col: col,
		X:   p.XMin + float64(col)*xstep,
		Y:   p.YMax - float64(row)*ystep,
	}
}

// EscapeTime returns the number of iterations of z = z² + c, starting from z = c = x+yi, before
// |z| exceeds 2, or max if it never does.
func EscapeTime(x, y float64, max int) int {
	x0, y0 := x, y
	iter := 0
	for x*x+y*y <= 4 && iter < max {
		x, y = x*x-y*y+x0, 2*x*y+y0
		iter++
	}
	return iter
}

// XtermColor maps an iteration count onto the 6x6x6 colour cube of the 256-colour palette
// (indices 16-231). Counts are clamped to 255 first; the clamped maximum, which covers every point
// inside the set, is black.
func XtermColor(iter int) uint8 {
	if iter >= 255 {
		return 16
	}
	if iter < 0 {
		iter = 0
	}
	return uint8(17 + iter%215)
}

// MandelbrotColor is the default ColorFunc.
func MandelbrotColor(maxIterations int) ColorFunc {
	return func(p Point) uint8 {
		return XtermColor(EscapeTime(p.X, p.Y, maxIterations))
	}
}

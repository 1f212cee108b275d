// Package render draws the rover map: the driven trail, obstacles,
// temperature labels and the rover itself.
package render

// View maps world centimetres onto a canvas of pixels. Canvas y grows
// downwards, world y grows upwards.
type View struct {
	Scale   float64 // pixels per cm
	OriginX float64 // canvas x of the world origin
	OriginY float64 // canvas y of the world origin
	Width   int
	Height  int
}

// DefaultView is the 1400x900 canvas with the start point a sixth of the
// way across and half way down, at 0.65 px/cm.
func DefaultView() View {
	return View{Scale: 0.65, OriginX: 1400 / 6, OriginY: 450, Width: 1400, Height: 900}
}

// WorldToCanvas converts a world position to canvas pixels.
func (v View) WorldToCanvas(x, y float64) (cx, cy float64) {
	return v.OriginX + x*v.Scale, v.OriginY - y*v.Scale
}

// CanvasToWorld is the inverse of WorldToCanvas.
func (v View) CanvasToWorld(cx, cy float64) (x, y float64) {
	return (cx - v.OriginX) / v.Scale, (v.OriginY - cy) / v.Scale
}

// Bounds returns the world rectangle visible on the canvas.
func (v View) Bounds() (minX, minY, maxX, maxY float64) {
	minX, maxY = v.CanvasToWorld(0, 0)
	maxX, minY = v.CanvasToWorld(float64(v.Width), float64(v.Height))
	return minX, minY, maxX, maxY
}

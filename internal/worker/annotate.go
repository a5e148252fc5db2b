package worker

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// palette gives every identity a visually distinct, stable color. Hashing
// the id into a fixed palette (rather than deriving RGB directly from the
// hash) avoids the muddy, low-contrast colors a raw hash-to-RGB mapping
// tends to produce.
var palette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
	{210, 245, 60, 255},
	{250, 190, 212, 255},
	{0, 128, 128, 255},
	{220, 190, 255, 255},
}

// stableColor hashes key into the fixed palette so the same identity always
// renders in the same color across frames and cameras.
func stableColor(key string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return palette[h.Sum32()%uint32(len(palette))]
}

// annotatedTrack is one confirmed local track, resolved (or not) to a global
// identity, ready for rendering.
type annotatedTrack struct {
	bbox     [4]float32
	localID  int
	globalID string // empty when the registry returned no match this frame
}

// Annotate draws each track's box and label, plus an overlay line showing
// the current global people count and the worker's instantaneous FPS, onto
// img in place.
func Annotate(img *image.RGBA, tracks []annotatedTrack, peopleCount int, fps float64) {
	for _, t := range tracks {
		var label, key string
		if t.globalID != "" {
			label = fmt.Sprintf("G:%s", t.globalID)
			key = "g:" + t.globalID
		} else {
			label = fmt.Sprintf("L:%d?", t.localID)
			key = fmt.Sprintf("l:%d", t.localID)
		}
		col := stableColor(key)
		drawBox(img, t.bbox, col, 2)
		drawLabel(img, int(t.bbox[0]), int(t.bbox[1])-4, label, col)
	}

	overlay := fmt.Sprintf("people: %d  fps: %.1f", peopleCount, fps)
	drawLabel(img, 6, 16, overlay, color.RGBA{255, 255, 255, 255})
}

// drawBox outlines box in col at the given line thickness, clamped to img's
// bounds so a prediction straying slightly off-frame never panics.
func drawBox(img *image.RGBA, box [4]float32, col color.RGBA, thickness int) {
	b := img.Bounds()
	x1, y1, x2, y2 := clampRect(box, b)
	if x2 <= x1 || y2 <= y1 {
		return
	}

	fill := func(r image.Rectangle) {
		draw.Draw(img, r.Intersect(b), &image.Uniform{C: col}, image.Point{}, draw.Src)
	}
	fill(image.Rect(x1, y1, x2, y1+thickness))
	fill(image.Rect(x1, y2-thickness, x2, y2))
	fill(image.Rect(x1, y1, x1+thickness, y2))
	fill(image.Rect(x2-thickness, y1, x2, y2))
}

func clampRect(box [4]float32, b image.Rectangle) (int, int, int, int) {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	x1 := clamp(int(box[0]), b.Min.X, b.Max.X)
	y1 := clamp(int(box[1]), b.Min.Y, b.Max.Y)
	x2 := clamp(int(box[2]), b.Min.X, b.Max.X)
	y2 := clamp(int(box[3]), b.Min.Y, b.Max.Y)
	return x1, y1, x2, y2
}

// drawLabel renders text with its baseline at (x, y) using the rasterized
// basic font, avoiding a TrueType dependency for simple overlay text.
func drawLabel(img *image.RGBA, x, y int, text string, col color.RGBA) {
	if y < 13 {
		y = 13
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(x),
			Y: fixed.I(y),
		},
	}
	d.DrawString(text)
}

// toRGBA copies img into an *image.RGBA suitable for in-place annotation,
// since the MJPEG decoder normally hands back a *image.YCbCr that the draw
// and font packages can't write into directly.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

package detector

import (
	"image"
)

// ToCHW converts a decoded image into normalized CHW float32 data of the
// given target width/height, resizing via nearest-neighbor sampling. Fast
// paths avoid the generic image.Image.At interface call for the common
// decode outputs (RGBA, YCbCr) the JPEG/MJPEG decoder produces.
func ToCHW(img image.Image, targetW, targetH int) []float32 {
	switch src := img.(type) {
	case *image.RGBA:
		return rgbaToCHW(src, targetW, targetH)
	case *image.YCbCr:
		return ycbcrToCHW(src, targetW, targetH)
	default:
		return genericToCHW(img, targetW, targetH)
	}
}

func rgbaToCHW(img *image.RGBA, targetW, targetH int) []float32 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := make([]float32, 3*targetW*targetH)
	plane := targetW * targetH

	for ty := 0; ty < targetH; ty++ {
		sy := ty * srcH / targetH
		for tx := 0; tx < targetW; tx++ {
			sx := tx * srcW / targetW
			off := img.PixOffset(bounds.Min.X+sx, bounds.Min.Y+sy)
			r, g, b := img.Pix[off], img.Pix[off+1], img.Pix[off+2]
			idx := ty*targetW + tx
			out[idx] = float32(r) / 255.0
			out[plane+idx] = float32(g) / 255.0
			out[2*plane+idx] = float32(b) / 255.0
		}
	}
	return out
}

func ycbcrToCHW(img *image.YCbCr, targetW, targetH int) []float32 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := make([]float32, 3*targetW*targetH)
	plane := targetW * targetH

	for ty := 0; ty < targetH; ty++ {
		sy := ty * srcH / targetH
		for tx := 0; tx < targetW; tx++ {
			sx := tx * srcW / targetW
			r, g, b, _ := img.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
			idx := ty*targetW + tx
			out[idx] = float32(r>>8) / 255.0
			out[plane+idx] = float32(g>>8) / 255.0
			out[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return out
}

func genericToCHW(img image.Image, targetW, targetH int) []float32 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := make([]float32, 3*targetW*targetH)
	plane := targetW * targetH

	for ty := 0; ty < targetH; ty++ {
		sy := ty * srcH / targetH
		for tx := 0; tx < targetW; tx++ {
			sx := tx * srcW / targetW
			r, g, b, _ := img.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
			idx := ty*targetW + tx
			out[idx] = float32(r>>8) / 255.0
			out[plane+idx] = float32(g>>8) / 255.0
			out[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return out
}

// CropBox returns the sub-image for box with pad fractional padding on each
// side (0.2 = 20%), clamped to the image bounds.
func CropBox(img image.Image, box [4]float32, pad float32) image.Image {
	bounds := img.Bounds()
	w := box[2] - box[0]
	h := box[3] - box[1]

	x1 := int(box[0] - w*pad)
	y1 := int(box[1] - h*pad)
	x2 := int(box[2] + w*pad)
	y2 := int(box[3] + h*pad)

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return img
	}

	rect := image.Rect(x1, y1, x2, y2)
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	return img
}

package worker

import (
	"bytes"
	"image"
	"image/jpeg"
)

// EncodeJPEG encodes img at quality (1-100). The standard library's encoder
// is always baseline (never progressive) and has no "extra optimization"
// knob, which happens to match the spec's requirement to disable both for
// encoding speed without any extra configuration.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

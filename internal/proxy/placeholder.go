package proxy

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

const placeholderSize = 400

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder returns the neutral image served when media cannot be fetched.
// It is rendered once and reused.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
		fill := color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
		for y := 0; y < placeholderSize; y++ {
			for x := 0; x < placeholderSize; x++ {
				img.Set(x, y, fill)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic("encode placeholder: " + err.Error())
		}
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}

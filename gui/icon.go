//go:build gui

package gui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"fyne.io/fyne/v2"
)

// appIcon draws the tray and window icon: a disc split into the palette's
// warm and cool halves.
func appIcon() fyne.Resource {
	const size = 22
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	center := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) - center + 0.5
			dy := float64(y) - center + 0.5
			dist := math.Sqrt(dx*dx + dy*dy)

			switch {
			case dist < 8 && dx < 0:
				img.Set(x, y, color.RGBA{255, 64, 0, 255})
			case dist < 8:
				img.Set(x, y, color.RGBA{0, 96, 255, 255})
			case dist < 10:
				img.Set(x, y, color.RGBA{40, 40, 40, 255})
			}
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return fyne.NewStaticResource("utter.png", buf.Bytes())
}

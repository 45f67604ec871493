package seed

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
)

// Scene describes a synthetic field photo: a base canopy colour, how much
// per-pixel noise to add, and whether to draw crop rows across it.
type Scene struct {
	Name   string
	Base   color.RGBA
	Jitter int
	Rows   bool
}

var Scenes = []Scene{
	{Name: "lush paddy", Base: color.RGBA{45, 160, 60, 255}, Jitter: 3},
	{Name: "wheat rows", Base: color.RGBA{120, 150, 60, 255}, Jitter: 6, Rows: true},
	{Name: "dry millet", Base: color.RGBA{170, 160, 110, 255}, Jitter: 8},
	{Name: "maize canopy", Base: color.RGBA{60, 140, 40, 255}, Jitter: 12, Rows: true},
	{Name: "cane block", Base: color.RGBA{30, 170, 20, 255}, Jitter: 5},
	{Name: "pest damage", Base: color.RGBA{90, 130, 60, 255}, Jitter: 80},
	{Name: "dusk stress", Base: color.RGBA{25, 45, 20, 255}, Jitter: 20, Rows: true},
}

// FieldPhoto renders scene as a JPEG of the given size.
func FieldPhoto(rng *rand.Rand, scene Scene, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := range height {
		shade := 0
		if scene.Rows && (y/6)%3 == 0 {
			shade = -40
		}
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{
				R: jitter(rng, scene.Base.R, scene.Jitter, shade),
				G: jitter(rng, scene.Base.G, scene.Jitter, shade),
				B: jitter(rng, scene.Base.B, scene.Jitter, shade),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode %s photo: %w", scene.Name, err)
	}

	return buf.Bytes(), nil
}

func jitter(rng *rand.Rand, v uint8, spread, shade int) uint8 {
	n := int(v) + shade
	if spread > 0 {
		n += rng.Intn(2*spread+1) - spread
	}
	return uint8(min(max(n, 0), 255))
}

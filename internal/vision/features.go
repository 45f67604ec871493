// Package vision holds the heuristic crop analysis pipeline: a handful of
// colour and texture features computed on a normalised photo, and a fixed
// linear scoring of those features against each crop label.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CanonicalSize is the edge length every photo is resampled to before
// feature extraction. The crop weights are calibrated against it.
const CanonicalSize = 224

const (
	greenFloor      = 100
	edgeThreshold   = 25
	saturationEps   = 1e-6
	canonicalPixels = CanonicalSize * CanonicalSize
)

// Features are the four measurements the classifier scores on.
type Features struct {
	GreenRatio  float64 `json:"greenRatio"`
	Brightness  float64 `json:"brightness"`
	Saturation  float64 `json:"saturation"`
	EdgeDensity float64 `json:"edgeDensity"`
}

// Diagnostics returns the features rounded the way they are shown to farmers.
func (f Features) Diagnostics() map[string]float64 {
	return map[string]float64{
		"green_ratio":  utils.RoundFloat64(f.GreenRatio, 3),
		"edge_density": utils.RoundFloat64(f.EdgeDensity, 3),
		"brightness":   utils.RoundFloat64(f.Brightness, 2),
		"saturation":   utils.RoundFloat64(f.Saturation, 3),
	}
}

// Decode parses an uploaded photo. The format name reported by the decoder
// is returned alongside the image.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", types.ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrInvalidImage, err)
	}

	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: zero area", types.ErrInvalidImage)
	}

	return img, format, nil
}

// Normalize drops any alpha channel and resamples img onto a CanonicalSize
// square RGBA canvas.
func Normalize(img image.Image) (*image.RGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero area", types.ErrInvalidImage)
	}

	img = flatten(img)
	dst := image.NewRGBA(image.Rect(0, 0, CanonicalSize, CanonicalSize))
	src := img.Bounds()

	if src.Dx() == CanonicalSize && src.Dy() == CanonicalSize {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst, nil
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst, nil
}

// flatten returns an opaque copy of img that keeps the straight colour of
// translucent pixels, as an RGB conversion does. Opaque images are returned
// unchanged.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x, y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}

	return out
}

// Extract computes the features of img after normalising it.
func Extract(img image.Image) (Features, error) {
	canvas, err := Normalize(img)
	if err != nil {
		return Features{}, err
	}

	var (
		green      int
		luminance  = make([]float64, 0, canonicalPixels)
		saturation = make([]float64, 0, canonicalPixels)
		gray       = make([]int, 0, canonicalPixels)
	)

	for y := 0; y < CanonicalSize; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+CanonicalSize*4]
		for x := 0; x < CanonicalSize; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]

			if g > r && g > b && g > greenFloor {
				green++
			}

			rf, gf, bf := float64(r), float64(g), float64(b)
			luminance = append(luminance, 0.2126*rf+0.7152*gf+0.0722*bf)

			mx := max(rf, gf, bf)
			mn := min(rf, gf, bf)
			saturation = append(saturation, (mx-mn)/(mx+saturationEps))

			gray = append(gray, luma(r, g, b))
		}
	}

	return Features{
		GreenRatio:  float64(green) / canonicalPixels,
		Brightness:  stat.Mean(luminance, nil) / 255.0,
		Saturation:  stat.Mean(saturation, nil),
		EdgeDensity: edgeDensity(gray, CanonicalSize, CanonicalSize),
	}, nil
}

// luma is the ITU-R 601-2 grayscale conversion with fixed point rounding.
func luma(r, g, b uint8) int {
	return (int(r)*19595 + int(g)*38470 + int(b)*7471 + 0x8000) >> 16
}

// findEdges is the 3x3 Laplacian-style edge kernel: 8 in the centre, -1 around it.
var findEdges = [3][3]int{
	{-1, -1, -1},
	{-1, 8, -1},
	{-1, -1, -1},
}

// edgeDensity convolves gray with findEdges, clamps the response to 0..255
// and returns the fraction of pixels above edgeThreshold. The outermost rows
// and columns are not filtered and keep their gray value.
func edgeDensity(gray []int, w, h int) float64 {
	if w == 0 || h == 0 {
		return 0
	}

	var edges int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			resp := gray[y*w+x]

			if x > 0 && y > 0 && x < w-1 && y < h-1 {
				var sum int
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						sum += findEdges[ky+1][kx+1] * gray[(y+ky)*w+x+kx]
					}
				}
				resp = min(max(sum, 0), 255)
			}

			if resp > edgeThreshold {
				edges++
			}
		}
	}

	return float64(edges) / float64(w*h)
}

package vision

import (
	"math"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"
)

type weights struct {
	green      float64
	saturation float64
	edge       float64
	brightness float64
}

func (w weights) score(f Features) float64 {
	return w.green*f.GreenRatio + w.saturation*f.Saturation + w.edge*f.EdgeDensity + w.brightness*f.Brightness
}

// cropWeights is listed in tie-break priority order: on an exact tie the
// earlier label wins.
var cropWeights = []struct {
	crop types.CropLabel
	w    weights
}{
	{types.CropRice, weights{green: 2.5, saturation: 1.0, edge: -1.5, brightness: -0.5}},
	{types.CropWheat, weights{green: 1.2, saturation: -0.3, edge: 0.8, brightness: 0.2}},
	{types.CropMillet, weights{green: 0.6, saturation: -0.8, edge: -0.2, brightness: 0.6}},
	{types.CropMaize, weights{green: 1.8, saturation: 0.3, edge: 1.1}},
	{types.CropSugarcane, weights{green: 2.0, saturation: 1.5, edge: 0.8}},
}

const (
	pestEdgeDensity     = 0.18
	stressEdgeDensity   = 0.12
	stressDarkBelow     = 0.25
	stressOverexposedAt = 0.9
)

// Score is the raw linear score of one crop label.
type Score struct {
	Crop  types.CropLabel `json:"crop"`
	Value float64         `json:"value"`
}

// Result is the outcome of classifying one photo.
type Result struct {
	Crop       types.CropLabel   `json:"crop"`
	Health     types.HealthLabel `json:"health"`
	Confidence float64           `json:"confidence"`
	Features   Features          `json:"features"`
	Scores     []Score           `json:"scores"`
}

// Classify scores every crop label and derives health from texture and
// exposure. It has no state: equal features always give an equal Result.
func Classify(f Features) Result {
	scores := make([]Score, 0, len(cropWeights))
	best := 0
	for i, cw := range cropWeights {
		scores = append(scores, Score{Crop: cw.crop, Value: cw.w.score(f)})
		if scores[i].Value > scores[best].Value {
			best = i
		}
	}

	return Result{
		Crop:       scores[best].Crop,
		Health:     Health(f),
		Confidence: Confidence(scores[best].Value),
		Features:   f,
		Scores:     scores,
	}
}

// Confidence maps a raw score into [0.35, 0.99], rounded to two places.
func Confidence(raw float64) float64 {
	c := 0.5 + (math.Tanh(raw)+1)/2*0.48
	c = math.Min(math.Max(c, types.MinConfidence), types.MaxConfidence)
	return utils.RoundFloat64(c, 2)
}

// Health applies the first matching rule: heavy texture, then moderate
// texture under poor exposure, otherwise healthy.
func Health(f Features) types.HealthLabel {
	switch {
	case f.EdgeDensity > pestEdgeDensity:
		return types.HealthPest
	case f.EdgeDensity > stressEdgeDensity && (f.Brightness < stressDarkBelow || f.Brightness > stressOverexposedAt):
		return types.HealthStressed
	default:
		return types.HealthHealthy
	}
}

// Analyze decodes a photo and runs extraction and classification on it.
// The decoder's format name is returned so the caller can name the blob.
func Analyze(data []byte) (Result, string, error) {
	img, format, err := Decode(data)
	if err != nil {
		return Result{}, "", err
	}

	features, err := Extract(img)
	if err != nil {
		return Result{}, "", err
	}

	return Classify(features), format, nil
}

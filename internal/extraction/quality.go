package extraction

import (
	"bytes"
	"image"
	"image/color"
	"math"

	_ "image/png"
)

// Quality flags from the page-image assessment. Any true flag routes the page
// to the vision path.
type Quality struct {
	HasHandwriting bool
	HasCharts      bool
	IsDegraded     bool
	Confidence     float64
}

// NeedsVision reports whether the page should take the vision path.
func (q Quality) NeedsVision() bool {
	return q.HasHandwriting || q.HasCharts || q.IsDegraded
}

const (
	lowContrastThreshold    = 30.0 // luminance std-dev below this reads as faded/degraded
	denseInkThreshold       = 0.30 // ink fraction above this suggests large graphic regions
	midRowThreshold         = 0.40 // fraction of mid-density rows above this reads as handwriting
	sparseInkForHandwriting = 0.02
)

// AssessQuality computes routing flags from raw image statistics: overall
// contrast, ink coverage, and the shape of the per-row ink profile. Typed
// text rows are bimodal (a row is a text line or blank); handwriting and
// charts smear ink across intermediate densities.
func AssessQuality(pngData []byte) (Quality, error) {
	img, _, err := image.Decode(bytes.NewReader(pngData))
	if err != nil {
		return Quality{}, err
	}
	return assessImage(img), nil
}

func assessImage(img image.Image) Quality {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return Quality{IsDegraded: true, Confidence: 0.1}
	}

	// Sample at a stride to keep the pass cheap on high-DPI renders.
	strideX := max(1, w/400)
	strideY := max(1, h/400)

	var sum, sumSq float64
	var samples float64
	var inkCount float64
	rowInk := make([]float64, 0, h/strideY+1)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		var rowCount, rowDark float64
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			lum := luminance(img.At(x, y))
			sum += lum
			sumSq += lum * lum
			samples++
			rowCount++
			if lum < 128 {
				inkCount++
				rowDark++
			}
		}
		if rowCount > 0 {
			rowInk = append(rowInk, rowDark/rowCount)
		}
	}
	if samples == 0 {
		return Quality{IsDegraded: true, Confidence: 0.1}
	}

	mean := sum / samples
	variance := sumSq/samples - mean*mean
	if variance < 0 {
		variance = 0
	}
	contrast := math.Sqrt(variance)
	inkRatio := inkCount / samples
	midRows := midDensityRowFraction(rowInk)

	q := Quality{Confidence: 0.9}

	if contrast < lowContrastThreshold {
		q.IsDegraded = true
		q.Confidence -= 0.3
	}
	if inkRatio > denseInkThreshold {
		q.HasCharts = true
		q.Confidence -= 0.2
	}
	if inkRatio > sparseInkForHandwriting && midRows > midRowThreshold {
		q.HasHandwriting = true
		q.Confidence -= 0.2
	}
	if q.Confidence < 0.1 {
		q.Confidence = 0.1
	}
	return q
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
}

// midDensityRowFraction returns the fraction of inked rows whose density sits
// between 20% and 80% of the peak row density.
func midDensityRowFraction(rowInk []float64) float64 {
	var peak float64
	for _, v := range rowInk {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return 0
	}
	var inked, mid float64
	for _, v := range rowInk {
		if v == 0 {
			continue
		}
		inked++
		ratio := v / peak
		if ratio > 0.2 && ratio < 0.8 {
			mid++
		}
	}
	if inked == 0 {
		return 0
	}
	return mid / inked
}

package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"slices"
)

const (
	histWidth   = 800
	histHeight  = 300
	histMargin  = 20
	histColumns = 200
	histFontPx  = 13
)

var (
	histBackground = color.RGBA{R: 24, G: 26, B: 32, A: 255}
	histBar        = color.RGBA{R: 90, G: 170, B: 250, A: 255}
	histStart      = color.RGBA{R: 250, G: 170, B: 60, A: 255}
	histText       = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

// writeHistogram renders the histogram and saves it as PNG.
func writeHistogram(path string, hist, starts []uint32) error {
	img, err := renderHistogram(hist, starts)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// renderHistogram draws bucket counts as bars, with the post-scatter bucket
// starts drawn as a line over them.
func renderHistogram(hist, starts []uint32) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, histWidth, histHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(histBackground), image.Point{}, draw.Src)

	bars := downsample(hist, histColumns, false)
	line := downsample(starts, histColumns, true)
	plotH := histHeight - 3*histMargin
	colW := (histWidth - 2*histMargin) / histColumns
	baseY := histHeight - histMargin

	maxBar := max(slices.Max(bars), 1)
	maxLine := max(slices.Max(line), 1)
	for i, v := range bars {
		h := int(uint64(v) * uint64(plotH) / uint64(maxBar))
		x0 := histMargin + i*colW
		r := image.Rect(x0, baseY-h, x0+colW-1, baseY)
		draw.Draw(img, r, image.NewUniform(histBar), image.Point{}, draw.Src)

		y := baseY - int(uint64(line[i])*uint64(plotH)/uint64(maxLine))
		for dx := range colW {
			img.Set(x0+dx, y, histStart)
		}
	}

	labels, err := newLabelRenderer(histFontPx)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%d buckets, max %d keys per column", len(hist), maxBar)
	if err := labels.draw(img, title, histMargin, histMargin, histText); err != nil {
		return nil, err
	}
	legend := "bucket starts"
	x := float64(histWidth-histMargin) - labels.width(legend)
	if err := labels.draw(img, legend, x, histMargin, histStart); err != nil {
		return nil, err
	}
	return img, nil
}

// downsample reduces values to n columns, summing each column or, when last
// is set, keeping the column's final value.
func downsample(values []uint32, n int, last bool) []uint32 {
	out := make([]uint32, n)
	if len(values) == 0 {
		return out
	}
	for i, v := range values {
		col := i * n / len(values)
		if last {
			out[col] = v
		} else {
			out[col] += v
		}
	}
	return out
}

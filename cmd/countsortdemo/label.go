package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// labelRenderer draws short text labels: go-text shapes the string into
// positioned glyphs, sfnt supplies the glyph outlines of the same font and
// vector rasterizes them.
//
// labelRenderer is not safe for concurrent use.
type labelRenderer struct {
	face    *font.Face
	outline *sfnt.Font
	shaper  shaping.HarfbuzzShaper
	buf     sfnt.Buffer
	size    float64
}

// newLabelRenderer loads Go Regular at size pixels per em.
func newLabelRenderer(size float64) (*labelRenderer, error) {
	face, err := font.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	outline, err := sfnt.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label outlines: %w", err)
	}
	return &labelRenderer{face: face, outline: outline, size: size}, nil
}

// shape returns the glyphs of s laid out left to right from the origin.
func (r *labelRenderer) shape(s string) []shaping.Glyph {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	out := r.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      r.face,
		Size:      fixed.Int26_6(r.size * 64),
		Script:    language.Latin,
		Language:  language.NewLanguage("en"),
	})
	return out.Glyphs
}

// width returns the advance of s in pixels.
func (r *labelRenderer) width(s string) float64 {
	var adv fixed.Int26_6
	for _, g := range r.shape(s) {
		adv += g.Advance
	}
	return float64(adv) / 64
}

// draw renders s with its baseline starting at (x, y).
func (r *labelRenderer) draw(dst draw.Image, s string, x, y float64, c color.Color) error {
	glyphs := r.shape(s)
	if len(glyphs) == 0 {
		return nil
	}
	b := dst.Bounds()
	ras := vector.NewRasterizer(b.Dx(), b.Dy())
	ppem := fixed.Int26_6(r.size * 64)

	penX := x - float64(b.Min.X)
	baseY := y - float64(b.Min.Y)
	for _, g := range glyphs {
		segments, err := r.outline.LoadGlyph(&r.buf, sfnt.GlyphIndex(g.GlyphID), ppem, nil)
		if err != nil {
			return fmt.Errorf("load glyph %d: %w", g.GlyphID, err)
		}
		// go-text offsets are y-up, sfnt outlines are y-down.
		ox := float32(penX + float64(g.XOffset)/64)
		oy := float32(baseY - float64(g.YOffset)/64)
		for _, seg := range segments {
			pt := func(i int) (float32, float32) {
				return ox + float32(seg.Args[i].X)/64, oy + float32(seg.Args[i].Y)/64
			}
			switch seg.Op {
			case sfnt.SegmentOpMoveTo:
				ras.MoveTo(pt(0))
			case sfnt.SegmentOpLineTo:
				ras.LineTo(pt(0))
			case sfnt.SegmentOpQuadTo:
				cx, cy := pt(0)
				tx, ty := pt(1)
				ras.QuadTo(cx, cy, tx, ty)
			case sfnt.SegmentOpCubeTo:
				c1x, c1y := pt(0)
				c2x, c2y := pt(1)
				tx, ty := pt(2)
				ras.CubeTo(c1x, c1y, c2x, c2y, tx, ty)
			}
		}
		ras.ClosePath()
		penX += float64(g.Advance) / 64
	}
	ras.Draw(dst, b, image.NewUniform(c), image.Point{})
	return nil
}

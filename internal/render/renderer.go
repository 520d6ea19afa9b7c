// SPDX-License-Identifier: MIT

// Package render rasterises scoreboard snapshots into transparent PNG
// frames for the video export pipeline.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/scorecast/scorecast/internal/recording"
)

// Base scoreboard dimensions before scaling, matching the overlay's
// native size.
const (
	BaseWidth  = 600
	BaseHeight = 80
)

// Surface is a reusable off-screen render target. It allocates its
// buffers once and renders any number of frames at a fixed scale.
// Not safe for concurrent use; the generator renders strictly in order.
type Surface struct {
	scale  float64
	base   *image.RGBA
	scaled *image.RGBA
	face   font.Face
}

// NewSurface builds a surface rendering at scale × base dimensions.
// Scale values outside (0, 8] are rejected.
func NewSurface(scale float64) (*Surface, error) {
	if scale <= 0 || scale > 8 || math.IsNaN(scale) {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	s := &Surface{
		scale: scale,
		base:  image.NewRGBA(image.Rect(0, 0, BaseWidth, BaseHeight)),
		face:  basicfont.Face7x13,
	}
	if scale != 1 {
		w := int(math.Round(BaseWidth * scale))
		h := int(math.Round(BaseHeight * scale))
		s.scaled = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return s, nil
}

// Bounds reports the output frame dimensions.
func (s *Surface) Bounds() image.Rectangle {
	if s.scaled != nil {
		return s.scaled.Bounds()
	}
	return s.base.Bounds()
}

// RenderPNG draws the snapshot and writes the encoded PNG frame to w.
// The alpha channel is preserved; pixels outside the scoreboard panels
// stay fully transparent.
func (s *Surface) RenderPNG(w io.Writer, snap recording.Snapshot) error {
	if s.base == nil {
		return fmt.Errorf("render surface already closed")
	}
	s.draw(snap)

	out := image.Image(s.base)
	if s.scaled != nil {
		xdraw.CatmullRom.Scale(s.scaled, s.scaled.Bounds(), s.base, s.base.Bounds(), xdraw.Src, nil)
		out = s.scaled
	}
	if err := png.Encode(w, out); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}

// Close releases the surface's buffers. Render calls after Close fail.
func (s *Surface) Close() {
	s.base = nil
	s.scaled = nil
}

var (
	panelColor = color.NRGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xe6}
	textColor  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func (s *Surface) draw(snap recording.Snapshot) {
	// Start from a fully transparent canvas.
	clear(s.base.Pix)

	// Layout: [home panel][timer/half panel][away panel]
	const (
		swatch  = 10
		panelW  = 230
		centerW = BaseWidth - 2*panelW
	)

	homePanel := image.Rect(0, 0, panelW, BaseHeight)
	centerPanel := image.Rect(panelW, 0, panelW+centerW, BaseHeight)
	awayPanel := image.Rect(panelW+centerW, 0, BaseWidth, BaseHeight)

	fillRect(s.base, homePanel, panelColor)
	fillRect(s.base, centerPanel, panelColor)
	fillRect(s.base, awayPanel, panelColor)

	fillRect(s.base, image.Rect(0, 0, swatch, BaseHeight), parseHexColor(snap.TeamHomeColor))
	fillRect(s.base, image.Rect(BaseWidth-swatch, 0, BaseWidth, BaseHeight), parseHexColor(snap.TeamAwayColor))

	s.text(snap.TeamHomeName, swatch+8, 30)
	s.text(fmt.Sprintf("%d", snap.TeamHomeScore), swatch+8, 60)
	s.textRight(snap.TeamAwayName, BaseWidth-swatch-8, 30)
	s.textRight(fmt.Sprintf("%d", snap.TeamAwayScore), BaseWidth-swatch-8, 60)

	s.textCentered(formatTimer(snap.Timer), BaseWidth/2, 34)
	half := snap.HalfPrefix
	if half == "" {
		half = "PERIODO"
	}
	s.textCentered(fmt.Sprintf("%s %d", half, snap.Half), BaseWidth/2, 62)
}

func (s *Surface) text(str string, x, y int) {
	d := font.Drawer{
		Dst:  s.base,
		Src:  image.NewUniform(textColor),
		Face: s.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(str)
}

func (s *Surface) textRight(str string, right, y int) {
	w := font.MeasureString(s.face, str).Ceil()
	s.text(str, right-w, y)
}

func (s *Surface) textCentered(str string, centerX, y int) {
	w := font.MeasureString(s.face, str).Ceil()
	s.text(str, centerX-w/2, y)
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.NRGBA) {
	xdraw.Draw(dst, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

// formatTimer renders elapsed seconds as MM:SS, rolling minutes past 99
// rather than truncating.
func formatTimer(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// parseHexColor parses "#rrggbb" (or "#rgb"), falling back to opaque
// white on malformed input so a bad color never fails a frame.
func parseHexColor(s string) color.NRGBA {
	fallback := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	if len(s) == 0 || s[0] != '#' {
		return fallback
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		r, okR := hexNibble(hex[0])
		g, okG := hexNibble(hex[1])
		b, okB := hexNibble(hex[2])
		if !okR || !okG || !okB {
			return fallback
		}
		return color.NRGBA{R: r * 17, G: g * 17, B: b * 17, A: 0xff}
	case 6:
		var out [3]uint8
		for i := 0; i < 3; i++ {
			hi, okHi := hexNibble(hex[2*i])
			lo, okLo := hexNibble(hex[2*i+1])
			if !okHi || !okLo {
				return fallback
			}
			out[i] = hi<<4 | lo
		}
		return color.NRGBA{R: out[0], G: out[1], B: out[2], A: 0xff}
	default:
		return fallback
	}
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

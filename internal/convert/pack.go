// Package convert turns a captured timeline screenshot into the packed
// black and red bit planes a 12.48" tri-color e-paper panel expects.
package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
)

// Panel geometry (12.48" B, landscape).
const (
	PanelWidth  = 1304
	PanelHeight = 984
	RowBytes    = PanelWidth / 8
	PlaneSize   = RowBytes * PanelHeight
)

// Thresholds on 0..255 channels.
const (
	blackLuma    = 64
	redMinR      = 128
	redDominance = 32
	opaqueAlpha  = 128
)

// Planes holds one frame. Bits are MSB-first, row-major; a 0 bit inks the
// pixel and a 1 bit leaves it white.
type Planes struct {
	Black []byte
	Red   []byte
}

// Ink counts the inked pixels of each plane.
func (p Planes) Ink() (black, red int) {
	return zeroBits(p.Black), zeroBits(p.Red)
}

func zeroBits(plane []byte) int {
	n := 0
	for _, b := range plane {
		for m := byte(0x80); m != 0; m >>= 1 {
			if b&m == 0 {
				n++
			}
		}
	}
	return n
}

// PackPNG decodes a PNG screenshot and packs it.
func PackPNG(data []byte) (Planes, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Planes{}, fmt.Errorf("convert: decode png: %w", err)
	}
	return Pack(img)
}

// Pack classifies every pixel of img into black, red or white. The image
// must be exactly PanelWidth wide and at least PanelHeight tall; taller
// images are cropped around their vertical center.
func Pack(img image.Image) (Planes, error) {
	b := img.Bounds()
	if b.Dx() != PanelWidth {
		return Planes{}, fmt.Errorf("convert: expected width %d, got %d", PanelWidth, b.Dx())
	}
	if b.Dy() < PanelHeight {
		return Planes{}, fmt.Errorf("convert: expected height >= %d, got %d", PanelHeight, b.Dy())
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(b)
		draw.Draw(nrgba, b, img, b.Min, draw.Src)
	}

	out := Planes{Black: whitePlane(), Red: whitePlane()}
	top := (b.Dy() - PanelHeight) / 2

	for y := 0; y < PanelHeight; y++ {
		row := nrgba.Pix[(top+y)*nrgba.Stride:]
		for x := 0; x < PanelWidth; x++ {
			px := row[x*4 : x*4+4]
			if px[3] < opaqueAlpha {
				continue
			}

			i := y*RowBytes + x>>3
			mask := byte(0x80 >> (x & 7))
			switch classify(px[0], px[1], px[2]) {
			case inkBlack:
				out.Black[i] &^= mask
			case inkRed:
				out.Red[i] &^= mask
			}
		}
	}
	return out, nil
}

func whitePlane() []byte {
	p := make([]byte, PlaneSize)
	for i := range p {
		p[i] = 0xFF
	}
	return p
}

type ink int

const (
	inkWhite ink = iota
	inkBlack
	inkRed
)

// classify maps a color to an ink: dark pixels (Rec. 601 luma below
// blackLuma) are black, strongly red pixels are red, everything else white.
func classify(r, g, b uint8) ink {
	luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if luma < blackLuma {
		return inkBlack
	}
	if r > redMinR && int(r)-int(max(g, b)) > redDominance {
		return inkRed
	}
	return inkWhite
}

// WriteDump writes black.bin and red.bin into dir.
func WriteDump(dir string, p Planes) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, plane := range map[string][]byte{"black.bin": p.Black, "red.bin": p.Red} {
		if err := os.WriteFile(filepath.Join(dir, name), plane, 0o644); err != nil {
			return fmt.Errorf("convert: write %s: %w", name, err)
		}
	}
	return nil
}

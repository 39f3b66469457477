package convert

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    ink
	}{
		{"black", 0, 0, 0, inkBlack},
		{"dark gray", 50, 50, 50, inkBlack},
		{"white", 255, 255, 255, inkWhite},
		{"light gray", 200, 200, 200, inkWhite},
		{"red", 221, 0, 0, inkRed},
		{"pink", 255, 230, 230, inkWhite},
		{"dark red", 120, 0, 0, inkBlack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.r, tt.g, tt.b); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func panelImage(h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, PanelWidth, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}

func TestPack(t *testing.T) {
	img := panelImage(PanelHeight)
	img.SetNRGBA(0, 0, color.NRGBA{A: 0xFF})
	img.SetNRGBA(9, 1, color.NRGBA{R: 0xDD, A: 0xFF})
	img.SetNRGBA(20, 2, color.NRGBA{A: 0x10}) // transparent black stays white

	p, err := Pack(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Black) != PlaneSize || len(p.Red) != PlaneSize {
		t.Fatalf("got plane sizes %d/%d", len(p.Black), len(p.Red))
	}
	if p.Black[0] != 0x7F {
		t.Errorf("black[0] = %#x, want 0x7f", p.Black[0])
	}
	if got := p.Red[RowBytes+1]; got != 0xBF {
		t.Errorf("red[row 1, byte 1] = %#x, want 0xbf", got)
	}
	if b, r := p.Ink(); b != 1 || r != 1 {
		t.Errorf("got ink %d/%d, want 1/1", b, r)
	}
}

func TestPack_CropsTallImages(t *testing.T) {
	img := panelImage(PanelHeight + 100)
	img.SetNRGBA(0, 49, color.NRGBA{A: 0xFF})   // cropped away
	img.SetNRGBA(0, 50, color.NRGBA{A: 0xFF})   // first kept row
	img.SetNRGBA(0, 1034, color.NRGBA{A: 0xFF}) // cropped away

	p, err := Pack(img)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := p.Ink(); b != 1 || p.Black[0] != 0x7F {
		t.Errorf("got %d black pixels, black[0] = %#x", b, p.Black[0])
	}
}

func TestPack_Errors(t *testing.T) {
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, PanelWidth-1, PanelHeight),
		image.Rect(0, 0, PanelWidth, PanelHeight-1),
	} {
		if _, err := Pack(image.NewNRGBA(r)); err == nil {
			t.Errorf("%v: expected error", r)
		}
	}
}

func TestPackPNGAndDump(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, PanelWidth, PanelHeight))
	for i := range src.Pix {
		src.Pix[i] = 0xFF
	}
	src.Set(8, 0, color.RGBA{A: 0xFF})

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	p, err := PackPNG(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if p.Black[1] != 0x7F {
		t.Errorf("black[1] = %#x, want 0x7f", p.Black[1])
	}

	dir := filepath.Join(t.TempDir(), "dump")
	if err := WriteDump(dir, p); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"black.bin", "red.bin"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() != PlaneSize {
			t.Errorf("%s: got %d bytes, want %d", name, fi.Size(), PlaneSize)
		}
	}

	if _, err := PackPNG([]byte("not a png")); err == nil {
		t.Error("expected decode error")
	}
}

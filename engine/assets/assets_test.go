package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/quartz/engine/core"
)

func TestShaderName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"shaders/pathtrace.rgen.spv", "pathtrace.rgen"},
		{"shaders/pathtrace.rgen.spv.toml", "pathtrace.rgen"},
		{"/abs/display.frag.spv", "display.frag"},
		{"shaders/pathtrace.rgen", ""},
		{"shaders/common.glsl", ""},
		{"quartz.toml", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := shaderName(tt.path); got != tt.want {
				t.Fatalf("shaderName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestShaderWatcherFiresOnWrite(t *testing.T) {
	defer core.EventShutdown()

	dir := t.TempDir()
	existing := filepath.Join(dir, "display.vert.spv")
	if err := os.WriteFile(existing, []byte{0x03, 0x02, 0x23, 0x07}, 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 16)
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, listener, func(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
		select {
		case changed <- data.Data.S:
		default:
		}
		return true
	})

	sw, err := NewShaderWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.Watch(dir); err != nil {
		t.Fatal(err)
	}
	defer sw.Close()

	if got := sw.Shaders(); len(got) != 1 || got[0] != existing {
		t.Fatalf("initial scan found %v", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "pathtrace.rgen.spv"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case name := <-changed:
			if name != "pathtrace.rgen" {
				t.Fatalf("unexpected shader %q", name)
			}
			return
		case <-deadline:
			t.Fatal("no shader change event")
		}
	}
}

func TestShaderWatcherClose(t *testing.T) {
	sw, err := NewShaderWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("close of an idle watcher: %v", err)
	}
	if err := sw.Close(); !errors.Is(err, ErrWatcherClosed) {
		t.Fatalf("second close: %v", err)
	}
	if err := sw.Watch(t.TempDir()); !errors.Is(err, ErrWatcherClosed) {
		t.Fatalf("watch after close: %v", err)
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(60 * x), G: uint8(80 * y), B: 200, A: 0xff})
		}
	}
	return img
}

func TestExportImage(t *testing.T) {
	tests := []struct {
		file   string
		format string
		decode func(f *os.File) (image.Image, error)
	}{
		{"render.png", "", func(f *os.File) (image.Image, error) { return png.Decode(f) }},
		{"render.tif", "", func(f *os.File) (image.Image, error) { return tiff.Decode(f) }},
		{"render.out", "bmp", func(f *os.File) (image.Image, error) { return bmp.Decode(f) }},
	}
	src := testImage()
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := ExportImage(src, path, tt.format); err != nil {
				t.Fatal(err)
			}
			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			img, err := tt.decode(f)
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds() != src.Bounds() {
				t.Fatalf("bounds %v, want %v", img.Bounds(), src.Bounds())
			}
			r, g, b, _ := img.At(3, 2).RGBA()
			if r>>8 != 180 || g>>8 != 160 || b>>8 != 200 {
				t.Fatalf("pixel (3,2) = %d %d %d", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestExportImageUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.exr")
	if err := ExportImage(testImage(), path, ""); !errors.Is(err, ErrUnknownImageFormat) {
		t.Fatalf("expected ErrUnknownImageFormat, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file must be created for an unknown format")
	}
}

func TestTextureFromImage(t *testing.T) {
	tests := []struct {
		name   string
		params ImageImportParams
		// Expected texel (3, 0) of the texture.
		want [4]byte
	}{
		{"flipped", ColorImageParams, [4]byte{180, 160, 200, 255}},
		{"as stored", ImageImportParams{}, [4]byte{180, 0, 200, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := TextureFromImage(testImage(), tt.params)
			if err != nil {
				t.Fatal(err)
			}
			if tex.Width != 4 || tex.Height != 3 || len(tex.Pixels) != 4*3*4 {
				t.Fatalf("texture %dx%d with %d bytes", tex.Width, tex.Height, len(tex.Pixels))
			}
			if tex.SRGB != tt.params.SRGB || tex.ID.IsNull() {
				t.Fatalf("srgb %v, id %s", tex.SRGB, tex.ID)
			}
			var got [4]byte
			copy(got[:], tex.Pixels[3*4:])
			if got != tt.want {
				t.Fatalf("texel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextureFromGrayImageIsExpanded(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 90})
	tex, err := TextureFromImage(gray, LinearImageParams)
	if err != nil {
		t.Fatal(err)
	}
	// (1, 1) lands in row 0 after the flip.
	if got := tex.Pixels[4:8]; got[0] != 90 || got[1] != 90 || got[2] != 90 || got[3] != 255 {
		t.Fatalf("texel = %v", got)
	}
}

func TestTextureFromEmptyImage(t *testing.T) {
	if _, err := TextureFromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), ColorImageParams); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestLoadTexture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "albedo.png")
	if err := ExportImage(testImage(), path, ""); err != nil {
		t.Fatal(err)
	}
	tex, err := LoadTexture(path, ColorImageParams)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width != 4 || tex.Height != 3 {
		t.Fatalf("texture is %dx%d", tex.Width, tex.Height)
	}

	if _, err := LoadTexture(filepath.Join(t.TempDir(), "missing.png"), ColorImageParams); err == nil {
		t.Fatal("loading a missing file must fail")
	}
}

package assets

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/quartz/engine/core"
)

var ErrUnknownImageFormat = errors.New("unknown image format")

// Encoder writes an image in one file format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

type EncoderFunc func(w io.Writer, img image.Image) error

func (f EncoderFunc) Encode(w io.Writer, img image.Image) error {
	return f(w, img)
}

var encoders = map[string]Encoder{
	"png": EncoderFunc(png.Encode),
	"tiff": EncoderFunc(func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}),
	"bmp": EncoderFunc(bmp.Encode),
}

// RegisterEncoder adds or replaces the encoder used for a format.
func RegisterEncoder(format string, encoder Encoder) {
	encoders[strings.ToLower(format)] = encoder
}

// ImageFormat returns the format named by the file extension of path.
func ImageFormat(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "tif" {
		return "tiff"
	}
	return ext
}

/**
 * @brief Writes img to path. An empty format is taken from the file extension.
 */
func ExportImage(img image.Image, path, format string) error {
	if format == "" {
		format = ImageFormat(path)
	}
	encoder, ok := encoders[strings.ToLower(format)]
	if !ok {
		return errors.Wrapf(ErrUnknownImageFormat, "%q", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := encoder.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	b := img.Bounds()
	core.LogInfo("exported %dx%d image to %s", b.Dx(), b.Dy(), path)
	return nil
}

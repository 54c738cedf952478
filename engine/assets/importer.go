package assets

import (
	"image"
	_ "image/jpeg"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/scene"
)

var ErrEmptyImage = errors.New("image has no pixels")

/** @brief Parameters used when importing an image as a texture. */
type ImageImportParams struct {
	/** @brief Stores the bottom row first so texture coordinate v grows upwards. */
	FlipY bool
	/** @brief Marks the texture as sRGB encoded color data. */
	SRGB bool
}

// Color textures are sRGB and flipped. Roughness, metalness and normal maps are linear.
var (
	ColorImageParams  = ImageImportParams{FlipY: true, SRGB: true}
	LinearImageParams = ImageImportParams{FlipY: true}
)

/**
 * @brief Decodes a png, jpeg, bmp or tiff file into an RGBA8 texture node. Images with
 * fewer channels are expanded and opaque images get an alpha of one.
 */
func LoadTexture(path string, params ImageImportParams) (*scene.Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		core.LogError("cannot open image file %s: %v", path, err)
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	core.LogInfo("loading texture image %s", path)
	img, format, err := image.Decode(f)
	if err != nil {
		core.LogError("failed to import texture image %s: %v", path, err)
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	core.LogDebug("decoded %s image %s: %dx%d", format, path, img.Bounds().Dx(), img.Bounds().Dy())
	return TextureFromImage(img, params)
}

// TextureFromImage converts any image to a texture node with a new identity.
func TextureFromImage(img image.Image, params ImageImportParams) (*scene.Texture, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	if params.FlipY {
		flipRows(rgba.Pix, rgba.Stride, rgba.Rect.Dy())
	}

	return &scene.Texture{
		ID:     core.NewNodeID(),
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		SRGB:   params.SRGB,
		Pixels: rgba.Pix,
	}, nil
}

func flipRows(pix []byte, stride, rows int) {
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

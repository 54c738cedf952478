package renderer

import (
	"encoding/binary"
	"image"
	"image/color"
	stdmath "math"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/systems"
)

/** @brief A copy of the accumulated HDR render buffer together with the display settings it was shown with. */
type ImageData struct {
	Width    uint32
	Height   uint32
	Format   gpu.Format
	Channels uint32
	// Half floats, row major, little endian.
	Pixels  []byte
	Display gpu.DisplayParameters
}

/**
 * @brief Reads back the render buffer of the last submitted frame. Blocks until the device is idle.
 */
func (r *Renderer) GrabImage() (*ImageData, error) {
	if !r.initialized {
		return nil, core.ErrNotInitialized
	}
	if !r.hasFrame {
		return nil, ErrNoFrame
	}
	r.device.WaitIdle()

	source := r.previousFrame().RenderBuffer
	size := uint64(source.Extent.Width) * uint64(source.Extent.Height) * 4 * 2
	readback := r.device.CreateReadbackBuffer(size)
	if !readback.IsValid() {
		return nil, errors.Wrap(ErrResourceCreation, "readback buffer")
	}

	cb := r.commands.AcquireCommandBuffer()
	if !cb.IsValid() {
		r.device.DestroyBuffer(&readback)
		return nil, errors.Wrap(ErrCommandBuffer, "image readback")
	}
	cb.TransitionImage(source, gpu.ImageStateShaderReadWrite, gpu.ImageStateCopySource)
	cb.CopyImageToBuffer(source, readback.Handle)
	cb.TransitionImage(source, gpu.ImageStateCopySource, gpu.ImageStateShaderReadWrite)
	// The command buffer manager owns the readback buffer from here on.
	owned := systems.TransientResources{Buffers: []gpu.Buffer{readback}}
	if !r.commands.ReleaseCommandBuffer(cb, owned) {
		return nil, errors.Wrap(ErrCommandBuffer, "image readback")
	}
	if !r.commands.SubmitCommandBuffers(r.device.GraphicsQueue()) {
		return nil, errors.Wrap(ErrSubmission, "image readback")
	}
	r.device.WaitIdle()

	data := &ImageData{
		Width:    source.Extent.Width,
		Height:   source.Extent.Height,
		Format:   source.Format,
		Channels: 4,
		Pixels:   make([]byte, size),
	}
	copy(data.Pixels, readback.Mapped)
	r.commands.Cleanup(true)
	r.cameras.ApplyDisplayParameters(&data.Display)
	return data, nil
}

// At returns the raw HDR value of a pixel.
func (d *ImageData) At(x, y int) [4]float32 {
	var px [4]float32
	offset := (y*int(d.Width) + x) * int(d.Channels) * 2
	for c := range px {
		px[c] = math.HalfToFloat32(binary.LittleEndian.Uint16(d.Pixels[offset+2*c:]))
	}
	return px
}

// ToImage applies exposure, tonemapping and gamma the way the display pass does.
func (d *ImageData) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(d.Width), int(d.Height)))
	for y := 0; y < int(d.Height); y++ {
		for x := 0; x < int(d.Width); x++ {
			px := d.At(x, y)
			img.SetNRGBA(x, y, color.NRGBA{
				R: d.displayChannel(px[0]),
				G: d.displayChannel(px[1]),
				B: d.displayChannel(px[2]),
				A: 0xff,
			})
		}
	}
	return img
}

func (d *ImageData) displayChannel(v float32) uint8 {
	c := float64(v * d.Display.Exposure)
	if c <= 0 || stdmath.IsNaN(c) {
		return 0
	}
	if d.Display.TonemapFactorSq > 0 {
		c = c * (1 + c/float64(d.Display.TonemapFactorSq)) / (1 + c)
	}
	if d.Display.InvGamma > 0 {
		c = stdmath.Pow(c, float64(d.Display.InvGamma))
	}
	return uint8(stdmath.Round(stdmath.Min(c, 1) * 255))
}

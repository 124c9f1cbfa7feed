package imaging

import (
	"github.com/nfnt/resize"

	"go-pneumonet-api/internal/apperrors"
)

// Tensor is a normalized float32 image in height-width-channel layout, ready
// for the classifier's input binding.
type Tensor struct {
	Data     []float32
	Height   int
	Width    int
	Channels int
}

// Preprocessor converts decoded artifacts into the classifier's fixed input
// contract: RGB, size x size spatial resolution, values divided by
// pixelScale. Lanczos3 resampling keeps the transform deterministic, so the
// same artifact always yields an identical tensor.
type Preprocessor struct {
	size       int
	pixelScale float32
}

func NewPreprocessor(size int, pixelScale float64) *Preprocessor {
	return &Preprocessor{size: size, pixelScale: float32(pixelScale)}
}

// Prepare produces the input tensor for one artifact. It does not fail on
// any decodable image; the error return covers only programmer misuse.
func (p *Preprocessor) Prepare(a *Artifact) (*Tensor, error) {
	if a == nil || a.Image == nil {
		return nil, apperrors.NewInternal("preprocessor called without a decoded image", nil)
	}

	resized := resize.Resize(uint(p.size), uint(p.size), a.Image, resize.Lanczos3)
	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	data := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			// RGBA returns 16-bit values; >>8 recovers the native
			// 8-bit channel before scale normalization.
			idx := (y*width + x) * 3
			data[idx] = float32(r>>8) / p.pixelScale
			data[idx+1] = float32(g>>8) / p.pixelScale
			data[idx+2] = float32(b>>8) / p.pixelScale
		}
	}

	return &Tensor{
		Data:     data,
		Height:   height,
		Width:    width,
		Channels: 3,
	}, nil
}

package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	iterationsPerStep = 25
	maskThreshold     = 128
)

// builtinInpainter fills the black area of the mask by diffusing the
// surrounding known pixels inward. It needs no model and is deterministic.
type builtinInpainter struct {
	iterationsPerStep int
}

func NewBuiltin() Inpainter {
	return &builtinInpainter{iterationsPerStep: iterationsPerStep}
}

func (b *builtinInpainter) Name() string {
	return BackendBuiltin
}

func (b *builtinInpainter) Inpaint(ctx context.Context, req Request) ([]image.Image, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	src := imaging.Clone(req.Image)
	mask := imaging.Grayscale(req.Mask)
	if req.Width > 0 && req.Height > 0 && (src.Bounds().Dx() != req.Width || src.Bounds().Dy() != req.Height) {
		src = imaging.Resize(src, req.Width, req.Height, imaging.Lanczos)
		mask = imaging.Resize(mask, req.Width, req.Height, imaging.Lanczos)
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if mask.Bounds().Dx() != w || mask.Bounds().Dy() != h {
		return nil, fmt.Errorf("%w: image %dx%d, mask %dx%d", ErrMaskSizeMismatch,
			w, h, mask.Bounds().Dx(), mask.Bounds().Dy())
	}

	var (
		pix   [3][]float64
		holes []int
		sum   [3]float64
		known int
	)
	for c := range pix {
		pix[c] = make([]float64, w*h)
	}
	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			pix[c][i] = float64(src.Pix[i*4+c])
		}
		if mask.Pix[i*4] < maskThreshold {
			holes = append(holes, i)
			continue
		}
		for c := 0; c < 3; c++ {
			sum[c] += pix[c][i]
		}
		known++
	}

	// seed the holes with the mean of the known region
	for c := 0; c < 3; c++ {
		seed := 128.0
		if known > 0 {
			seed = sum[c] / float64(known)
		}
		for _, i := range holes {
			pix[c][i] = seed
		}
	}

	if len(holes) > 0 && known > 0 {
		for it := 0; it < req.NumInferenceSteps*b.iterationsPerStep; it++ {
			if it%b.iterationsPerStep == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			relax(pix, holes, w, h)
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			out.Pix[i*4+c] = clamp(pix[c][i])
		}
		out.Pix[i*4+3] = 0xff
	}
	return []image.Image{out}, nil
}

// relax replaces every hole pixel with the average of its in-bounds
// 4-neighbours, updating in place.
func relax(pix [3][]float64, holes []int, w, h int) {
	for _, i := range holes {
		x, y := i%w, i/w
		var acc [3]float64
		n := 0
		add := func(j int) {
			for c := 0; c < 3; c++ {
				acc[c] += pix[c][j]
			}
			n++
		}
		if x > 0 {
			add(i - 1)
		}
		if x < w-1 {
			add(i + 1)
		}
		if y > 0 {
			add(i - w)
		}
		if y < h-1 {
			add(i + w)
		}
		if n == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			pix[c][i] = acc[c] / float64(n)
		}
	}
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func validate(req Request) error {
	if req.Image == nil || req.Mask == nil {
		return fmt.Errorf("image and mask are required")
	}
	if req.NumInferenceSteps < 1 {
		return fmt.Errorf("num_inference_steps must be at least 1, got %d", req.NumInferenceSteps)
	}
	if req.GuidanceScale <= 0 {
		return fmt.Errorf("guidance_scale must be positive, got %g", req.GuidanceScale)
	}
	return nil
}

package processor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MaxModelSide  = 512
	ModelSideStep = 64

	dataURIPrefix = "data:image/png;base64,"
)

var (
	ErrImageTooSmall  = errors.New("image too small for model")
	ErrInvalidDataURI = errors.New("invalid data URI")
)

// Decode reads any registered raster format and converts it to opaque RGB.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}
	return ToRGB(img), nil
}

// ToRGB drops the alpha channel and keeps the stored colour, so a transparent
// black pixel stays black. Masks exported from a cleared canvas rely on it.
func ToRGB(img image.Image) *image.NRGBA {
	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	return rgb
}

// ModelSize fits (w, h) inside MaxModelSide on the longer side, then floors
// both sides to a multiple of ModelSideStep. It never upscales.
func ModelSize(w, h int) (int, int) {
	var newW, newH int
	if w > h {
		newW = min(w, MaxModelSide)
		newH = h * newW / w
	} else {
		newH = min(h, MaxModelSide)
		if h == 0 {
			return 0, 0
		}
		newW = w * newH / h
	}

	newW = (newW / ModelSideStep) * ModelSideStep
	newH = (newH / ModelSideStep) * ModelSideStep
	return newW, newH
}

func ResizeToModelSize(img image.Image) (*image.NRGBA, error) {
	bounds := img.Bounds()
	w, h := ModelSize(bounds.Dx(), bounds.Dy())
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d resolves to %dx%d", ErrImageTooSmall, bounds.Dx(), bounds.Dy(), w, h)
	}
	return ResizeTo(img, w, h), nil
}

func ResizeTo(img image.Image, width, height int) *image.NRGBA {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DataURI(pngData []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(pngData)
}

// DecodeDataURI accepts any base64 data URI and returns the raw payload.
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return data, nil
}

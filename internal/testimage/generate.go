// Package testimage produces the fixed image/mask pair used to exercise
// the inpainting endpoint by hand.
package testimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/ds124wfegd/inpainting/internal/pkg/processor"
	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
)

const (
	Size      = 100
	ImageName = "test_image.png"
	MaskName  = "test_mask.png"
)

var (
	// Inclusive bounding boxes of the filled ellipses.
	imageEllipse = image.Rect(25, 25, 75, 75)
	maskEllipse  = image.Rect(40, 40, 60, 60)
)

// ellipse is an alpha mask that is opaque inside the ellipse inscribed in
// the inclusive box r.
type ellipse struct {
	r image.Rectangle
}

func (e ellipse) ColorModel() color.Model {
	return color.AlphaModel
}

func (e ellipse) Bounds() image.Rectangle {
	return image.Rect(e.r.Min.X, e.r.Min.Y, e.r.Max.X+1, e.r.Max.Y+1)
}

func (e ellipse) At(x, y int) color.Color {
	rx := float64(e.r.Dx()+1) / 2
	ry := float64(e.r.Dy()+1) / 2
	dx := (float64(x) + 0.5 - float64(e.r.Min.X) - rx) / rx
	dy := (float64(y) + 0.5 - float64(e.r.Min.Y) - ry) / ry
	if dx*dx+dy*dy <= 1 {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

func render(box image.Rectangle) ([]byte, error) {
	canvas := imaging.New(Size, Size, color.White)
	draw.DrawMask(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, ellipse{r: box}, image.Point{}, draw.Over)
	return processor.EncodePNG(canvas)
}

// ImagePNG is a white canvas with a black ellipse filling the middle half.
func ImagePNG() ([]byte, error) {
	return render(imageEllipse)
}

// MaskPNG is a white canvas with a small black ellipse in the center.
func MaskPNG() ([]byte, error) {
	return render(maskEllipse)
}

// Generate writes both files into store, replacing existing ones.
func Generate(store storage.FileStorage) error {
	files := []struct {
		name   string
		render func() ([]byte, error)
	}{
		{ImageName, ImagePNG},
		{MaskName, MaskPNG},
	}

	for _, f := range files {
		data, err := f.render()
		if err != nil {
			return fmt.Errorf("render %s: %w", f.name, err)
		}
		if err := store.Save(f.name, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("save %s: %w", f.name, err)
		}
	}
	return nil
}

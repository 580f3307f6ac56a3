// writes test_image.png and test_mask.png into the working directory
package main

import (
	"fmt"

	"github.com/ds124wfegd/inpainting/internal/pkg/storage"
	"github.com/ds124wfegd/inpainting/internal/testimage"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := testimage.Generate(storage.NewFileStorage(".")); err != nil {
		logrus.Fatalf("Cannot create test images. Error: {%s}", err.Error())
	}
	fmt.Printf("Created %s and %s\n", testimage.ImageName, testimage.MaskName)
}

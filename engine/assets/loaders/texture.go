package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/spaghettifunk/prism/engine/resources"
)

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	// Open and decode the texture image file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image `%s`: %w", path, err)
	}

	flip := false
	if p, ok := params.(*resources.ImageResourceParams); ok && p != nil {
		flip = p.FlipY
	}

	return &resources.Resource{
		Name:     baseName(path),
		Type:     resources.ResourceTypeImage,
		FullPath: path,
		DataSize: uint64(info.Size()),
		Data:     toRGBA(img, flip),
	}, nil
}

func (tl *TextureLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}

func toRGBA(img image.Image, flipY bool) *resources.ImageResourceData {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]uint8, 0, 4*w*h)
	for y := 0; y < h; y++ {
		row := y
		if flipY {
			row = h - 1 - y
		}
		start := row * rgba.Stride
		pixels = append(pixels, rgba.Pix[start:start+4*w]...)
	}
	return &resources.ImageResourceData{
		Width:  uint32(w),
		Height: uint32(h),
		Pixels: pixels,
	}
}

package processor

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// ImageResizer shrinks an image to fit inside Width x Height, keeping the
// aspect ratio. A zero bound leaves that dimension unconstrained. Images are never enlarged.
type ImageResizer struct {
	Width  int
	Height int
}

// Modify to implement ImageModifier interface
func (r *ImageResizer) Modify(img image.Image) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	if w == 0 || h == 0 || (r.Width == 0 && r.Height == 0) {
		return img
	}

	ratio := 0.0
	if r.Width > 0 {
		ratio = w / float64(r.Width)
	}
	if r.Height > 0 {
		if hRatio := h / float64(r.Height); hRatio > ratio {
			ratio = hRatio
		}
	}

	// Nothing to do - return original image
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, max(1, int(w/ratio)), max(1, int(h/ratio)), imaging.Lanczos)
}

// Flattener composites an image onto an opaque background so the result
// carries no transparency.
type Flattener struct {
	Background color.Color
}

func (f *Flattener) Modify(img image.Image) image.Image {
	bg := f.Background
	if bg == nil {
		bg = color.White
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// LoadImage decodes r, honoring EXIF orientation, and applies modifiers in order.
func LoadImage(r io.Reader, modifiers ...ImageModifier) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	return Apply(img, modifiers...), nil
}

func Apply(img image.Image, modifiers ...ImageModifier) image.Image {
	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}
	return img
}

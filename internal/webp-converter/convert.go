package webp_converter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"

	"github.com/trunov/webpbucket/internal/entities"
	"github.com/trunov/webpbucket/internal/processor"
)

var ErrEmptyDocument = errors.New("document has no pages")

// PDFRenderer rasterizes the first page of a PDF document.
type PDFRenderer interface {
	RenderFirstPage(data []byte, dpi float64) (image.Image, error)
}

type Options struct {
	PNGQuality  float32
	JPEGQuality float32
	PDFDPI      float64
	MaxWidth    int
	MaxHeight   int
}

type Converter struct {
	opts Options
	pdf  PDFRenderer
}

func New(opts Options) *Converter {
	return &Converter{opts: opts, pdf: fitzRenderer{}}
}

// WithPDFRenderer replaces the PDF rasterizer.
func (c *Converter) WithPDFRenderer(r PDFRenderer) *Converter {
	c.pdf = r
	return c
}

// Decode turns the source bytes into a raster image. Raster sources keep
// their alpha; a PDF yields only its first page, flattened onto white.
func (c *Converter) Decode(data []byte, task entities.Task) (image.Image, error) {
	mime := mimetype.Detect(data)

	switch task.Kind {
	case entities.KindRasterImage:
		if !strings.HasPrefix(mime.String(), "image/") {
			return nil, fmt.Errorf("expected image content, got %s", mime.String())
		}
		img, err := processor.LoadImage(bytes.NewReader(data), c.modifiers()...)
		if err != nil {
			return nil, fmt.Errorf("error decoding image: %w", err)
		}
		return img, nil

	case entities.KindPDF:
		if !mime.Is("application/pdf") {
			return nil, fmt.Errorf("expected application/pdf content, got %s", mime.String())
		}
		page, err := c.pdf.RenderFirstPage(data, c.opts.PDFDPI)
		if err != nil {
			return nil, fmt.Errorf("error rendering pdf: %w", err)
		}
		mods := append([]processor.ImageModifier{&processor.Flattener{}}, c.modifiers()...)
		return processor.Apply(page, mods...), nil

	default:
		return nil, fmt.Errorf("unsupported source kind %s", task.Kind)
	}
}

// Encode writes img as lossy WebP. PNG sources use the PNG quality, every
// other source the JPEG quality.
func (c *Converter) Encode(img image.Image, task entities.Task) ([]byte, error) {
	q := c.opts.JPEGQuality
	if task.Ext == ".png" {
		q = c.opts.PNGQuality
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("error encoding to webp: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *Converter) modifiers() []processor.ImageModifier {
	if c.opts.MaxWidth == 0 && c.opts.MaxHeight == 0 {
		return nil
	}
	return []processor.ImageModifier{&processor.ImageResizer{Width: c.opts.MaxWidth, Height: c.opts.MaxHeight}}
}

type fitzRenderer struct{}

func (fitzRenderer) RenderFirstPage(data []byte, dpi float64) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, ErrEmptyDocument
	}
	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Package pdfgen assembles page images into a single PDF document.
package pdfgen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoImages is returned when there is nothing to assemble.
var ErrNoImages = errors.New("no images to assemble")

const jpegQuality = 90

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// Options configures assembly.
type Options struct {
	// MaxWidth downscales wider images, keeping the aspect ratio.
	// Zero keeps images as they are.
	MaxWidth uint
}

// Assembler turns an ordered list of images into PDF bytes.
type Assembler interface {
	Assemble(images []io.Reader, opts Options) ([]byte, error)
}

// AssemblerFunc adapts a function to Assembler.
type AssemblerFunc func(images []io.Reader, opts Options) ([]byte, error)

func (f AssemblerFunc) Assemble(images []io.Reader, opts Options) ([]byte, error) {
	return f(images, opts)
}

// Default is the pdfcpu-backed assembler.
var Default Assembler = AssemblerFunc(Assemble)

// Assemble builds a PDF with one page per image, in the given order.
func Assemble(images []io.Reader, opts Options) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	if opts.MaxWidth > 0 {
		scaled := make([]io.Reader, len(images))
		for i, r := range images {
			s, err := downscale(r, opts.MaxWidth)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i+1, err)
			}
			scaled[i] = s
		}
		images = scaled
	}

	var buf bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.ImportImages(nil, &buf, images, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return nil, fmt.Errorf("importing images: %w", err)
	}
	return buf.Bytes(), nil
}

// downscale re-encodes r as JPEG no wider than maxWidth. Images already
// within bounds are passed through untouched.
func downscale(r io.Reader, maxWidth uint) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if uint(cfg.Width) <= maxWidth {
		return bytes.NewReader(data), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	resized := resize.Resize(maxWidth, 0, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return &out, nil
}

package pdfgen

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func readers(blobs ...[]byte) []io.Reader {
	out := make([]io.Reader, len(blobs))
	for i, b := range blobs {
		out[i] = bytes.NewReader(b)
	}
	return out
}

func pageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	require.NoError(t, err)
	return n
}

func TestAssemble(t *testing.T) {
	imgs := readers(
		testJPEG(t, 40, 60, 10),
		testJPEG(t, 40, 60, 120),
		testJPEG(t, 40, 60, 240),
	)

	pdf, err := Assemble(imgs, Options{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Equal(t, 3, pageCount(t, pdf))
}

func TestAssemble_NoImages(t *testing.T) {
	_, err := Assemble(nil, Options{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestAssemble_MaxWidth(t *testing.T) {
	pdf, err := Assemble(readers(testJPEG(t, 200, 100, 50), testJPEG(t, 30, 30, 50)), Options{MaxWidth: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, pageCount(t, pdf))
}

func TestAssemble_InvalidImage(t *testing.T) {
	_, err := Assemble(readers([]byte("not an image")), Options{MaxWidth: 10})
	assert.ErrorContains(t, err, "page 1")
}

func TestDownscale(t *testing.T) {
	t.Run("wide image is resized", func(t *testing.T) {
		r, err := downscale(bytes.NewReader(testJPEG(t, 200, 100, 0)), 50)
		require.NoError(t, err)

		cfg, _, err := image.DecodeConfig(r)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 25, cfg.Height)
	})

	t.Run("narrow image passes through", func(t *testing.T) {
		src := testJPEG(t, 20, 20, 0)
		r, err := downscale(bytes.NewReader(src), 50)
		require.NoError(t, err)

		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, src, got)
	})
}

func TestAssemblerFunc(t *testing.T) {
	var got int
	a := AssemblerFunc(func(images []io.Reader, _ Options) ([]byte, error) {
		got = len(images)
		return []byte("pdf"), nil
	})

	out, err := a.Assemble(readers([]byte("a"), []byte("b")), Options{})
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(out))
	assert.Equal(t, 2, got)
}

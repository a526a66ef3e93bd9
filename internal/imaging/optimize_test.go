package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 200})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestOptimizeDownscalesAndEncodesJPEG(t *testing.T) {
	res, err := Optimize(encodePNG(t, 400, 100), Options{MaxDimension: 200})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 50, res.Height)
	assert.Equal(t, "png", res.SourceFormat)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, cfg.Width)
}

func TestOptimizeKeepsSmallImages(t *testing.T) {
	res, err := Optimize(encodePNG(t, 30, 60), Options{})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Width)
	assert.Equal(t, 60, res.Height)
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	_, err := Optimize([]byte("definitely not an image"), Options{})
	require.ErrorIs(t, err, ErrUndecodable)
}

func TestOptimizeAcceptsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 10)), nil))
	res, err := Optimize(buf.Bytes(), Options{Quality: 90})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", res.SourceFormat)
}

func TestFitPreservesAspect(t *testing.T) {
	w, h := fit(1000, 3000, 300)
	assert.Equal(t, 100, w)
	assert.Equal(t, 300, h)
	w, h = fit(5000, 1, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 1, h)
}

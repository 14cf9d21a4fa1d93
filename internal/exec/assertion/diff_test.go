package assertion

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDiffRatio_IdenticalImagesZero(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	ratio, err := DiffRatio(a, a, channelThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ratio)
}

func TestDiffRatio_SmallDeltaWithinThresholdIgnored(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b := solidPNG(t, 10, 10, color.RGBA{R: 120, G: 100, B: 100, A: 255})
	ratio, err := DiffRatio(a, b, channelThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ratio)
}

func TestDiffRatio_LargeDeltaCountsEveryPixel(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	b := solidPNG(t, 10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	ratio, err := DiffRatio(a, b, channelThreshold)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestDiffRatio_PartialChange(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if y < 5 {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	ratio, err := DiffRatio(a, buf.Bytes(), channelThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio, 1e-9)
}

func TestDiffRatio_DimensionMismatchIsFullDiff(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{A: 255})
	b := solidPNG(t, 20, 10, color.RGBA{A: 255})
	ratio, err := DiffRatio(a, b, channelThreshold)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestDiffRatio_BadPNGErrors(t *testing.T) {
	_, err := DiffRatio([]byte("not a png"), []byte("also not"), channelThreshold)
	assert.Error(t, err)
}

func TestIsBenignConsoleError(t *testing.T) {
	assert.True(t, isBenignConsoleError("Failed to load resource: favicon.ico 404"))
	assert.False(t, isBenignConsoleError("Uncaught TypeError: x is undefined"))
}

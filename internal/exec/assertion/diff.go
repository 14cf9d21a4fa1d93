package assertion

import (
	"bytes"
	"fmt"
	"image/png"
)

// channelThreshold is the per-channel delta below which two pixels are
// considered the same, absorbing antialiasing and JPEG-ish noise.
const channelThreshold = 40

// DiffRatio decodes two PNGs and returns the fraction of pixels whose
// any-channel delta exceeds threshold. Dimension mismatches count as a
// full diff: a resized page is a changed page.
func DiffRatio(baselinePNG, currentPNG []byte, threshold uint8) (float64, error) {
	baseline, err := png.Decode(bytes.NewReader(baselinePNG))
	if err != nil {
		return 0, fmt.Errorf("decoding baseline png: %w", err)
	}
	current, err := png.Decode(bytes.NewReader(currentPNG))
	if err != nil {
		return 0, fmt.Errorf("decoding current png: %w", err)
	}

	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return 1.0, nil
	}

	total := bb.Dx() * bb.Dy()
	if total == 0 {
		return 0, nil
	}

	diff := 0
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			if pixelDiffers(baseline.At(bb.Min.X+x, bb.Min.Y+y), current.At(cb.Min.X+x, cb.Min.Y+y), threshold) {
				diff++
			}
		}
	}
	return float64(diff) / float64(total), nil
}

func pixelDiffers(a, b interface{ RGBA() (r, g, b, a uint32) }, threshold uint8) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	t := uint32(threshold) << 8 // RGBA() returns 16-bit channels
	return delta(ar, br) > t || delta(ag, bg) > t || delta(ab, bb) > t
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

package telegram

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

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCombineAsOne_StacksPages(t *testing.T) {
	out, err := combineAsOne([][]byte{pngOf(t, 10, 20), pngOf(t, 30, 10)})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}

func TestCombineAsOne_RejectsGarbage(t *testing.T) {
	_, err := combineAsOne([][]byte{[]byte("not an image")})
	assert.Error(t, err)
}

func TestScaleDownNN(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	dst := scaleDownNN(src, 10, 5)
	assert.Equal(t, image.Rect(0, 0, 10, 5), dst.Bounds())
}

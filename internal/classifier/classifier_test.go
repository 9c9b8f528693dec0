package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/mri-check/internal/session"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type stubModel struct {
	calls int
	probs []float32
	err   error
}

func (s *stubModel) Predict(ctx context.Context, input *Tensor) ([]float32, error) {
	s.calls++
	return s.probs, s.err
}

func TestPreprocessScalesAndResizes(t *testing.T) {
	data := encodePNG(t, solid(50, 80, color.RGBA{R: 255, G: 51, B: 0, A: 255}))

	tensor, err := Preprocess(data)
	require.NoError(t, err)
	for _, px := range [][2]int{{0, 0}, {InputSize - 1, InputSize - 1}, {112, 17}} {
		rgb := tensor[0][px[1]][px[0]]
		assert.InDelta(t, 1.0, rgb[0], 1e-6)
		assert.InDelta(t, 0.2, rgb[1], 1e-6)
		assert.InDelta(t, 0.0, rgb[2], 1e-6)
	}
	assert.Len(t, tensor.Flatten(), InputSize*InputSize*3)
	assert.Equal(t, []int{1, 224, 224, 3}, Shape())
}

func TestPreprocessExpandsGrayscale(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gray, &jpeg.Options{Quality: 100}))

	tensor, err := Preprocess(buf.Bytes())
	require.NoError(t, err)
	rgb := tensor[0][100][100]
	assert.InDelta(t, rgb[0], rgb[1], 1e-6)
	assert.InDelta(t, rgb[1], rgb[2], 1e-6)
	assert.InDelta(t, 128.0/255, rgb[0], 0.02)
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"))
	assert.ErrorIs(t, err, session.ErrDecode)

	_, err = Preprocess(nil)
	assert.ErrorIs(t, err, session.ErrDecode)
}

func TestInterpretPicksArgMax(t *testing.T) {
	p, err := Interpret([]float32{0.7, 0.1, 0.1, 0.1})
	require.NoError(t, err)
	assert.Equal(t, "Glioma Tumor", p.Label)
	assert.Equal(t, 0, p.Index)
	assert.InDelta(t, 70.0, p.Confidence, 1e-4)

	p, err = Interpret([]float32{0.05, 0.05, 0.1, 0.8})
	require.NoError(t, err)
	assert.Equal(t, "Pituitary Tumor", p.Label)
}

func TestInterpretConfidenceBounds(t *testing.T) {
	dists := [][]float32{
		{1, 0, 0, 0},
		{0.25, 0.25, 0.25, 0.25},
		{0, 0, 0.999, 0.001},
		{0, 1.0000001, 0, 0},
	}
	for _, d := range dists {
		p, err := Interpret(d)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 100.0)
	}
}

func TestInterpretRejectsBadOutput(t *testing.T) {
	_, err := Interpret([]float32{0.5, 0.5})
	assert.ErrorIs(t, err, session.ErrClassification)

	nan := float32(0)
	nan = nan / nan
	_, err = Interpret([]float32{nan, 0.1, 0.1, 0.1})
	assert.ErrorIs(t, err, session.ErrClassification)
}

func TestLazyMemoizesSuccessOnly(t *testing.T) {
	model := &stubModel{}
	attempts := 0
	lazy := NewLazy(func(ctx context.Context) (Model, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("download failed")
		}
		return model, nil
	})

	_, err := lazy.Get(context.Background())
	assert.ErrorIs(t, err, session.ErrArtifactUnavailable)
	assert.False(t, lazy.Ready())

	for i := 0; i < 3; i++ {
		got, err := lazy.Get(context.Background())
		require.NoError(t, err)
		assert.Same(t, model, got)
	}
	assert.Equal(t, 2, attempts)
	assert.True(t, lazy.Ready())
}

func TestClassifierClassify(t *testing.T) {
	model := &stubModel{probs: []float32{0.1, 0.2, 0.6, 0.1}}
	c := New(NewLazy(func(ctx context.Context) (Model, error) { return model, nil }), zap.NewNop())

	label, confidence, err := c.Classify(context.Background(), encodePNG(t, solid(4, 4, color.White)))
	require.NoError(t, err)
	assert.Equal(t, "No Tumor", label)
	assert.InDelta(t, 60.0, confidence, 1e-4)
}

func TestClassifierSkipsModelOnDecodeError(t *testing.T) {
	model := &stubModel{probs: []float32{1, 0, 0, 0}}
	c := New(NewLazy(func(ctx context.Context) (Model, error) { return model, nil }), zap.NewNop())

	_, _, err := c.Classify(context.Background(), []byte("nope"))
	assert.ErrorIs(t, err, session.ErrDecode)
	assert.Zero(t, model.calls)
}

func TestClassifierWrapsModelFailure(t *testing.T) {
	model := &stubModel{err: errors.New("connection refused")}
	c := New(NewLazy(func(ctx context.Context) (Model, error) { return model, nil }), zap.NewNop())

	_, _, err := c.Classify(context.Background(), encodePNG(t, solid(4, 4, color.Black)))
	assert.ErrorIs(t, err, session.ErrClassification)
	assert.Equal(t, session.KindClassification, session.KindOf(err))
}

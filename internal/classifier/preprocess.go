package classifier

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/example/mri-check/internal/session"
)

// InputSize is the square spatial resolution the model was trained on.
const InputSize = 224

// Tensor is a single-image batch in NHWC order with RGB channels scaled to [0,1].
type Tensor [1][InputSize][InputSize][3]float32

// Preprocess decodes a JPEG or PNG upload and turns it into the model input: RGB, bilinear
// resize to InputSize×InputSize, intensities divided by 255, batch dimension of one.
func Preprocess(data []byte) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", session.ErrDecode)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDecode, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", session.ErrDecode)
	}

	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	t := new(Tensor)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			i := dst.PixOffset(x, y)
			t[0][y][x][0] = float32(dst.Pix[i]) / 255
			t[0][y][x][1] = float32(dst.Pix[i+1]) / 255
			t[0][y][x][2] = float32(dst.Pix[i+2]) / 255
		}
	}
	return t, nil
}

// Flatten returns the tensor values in row-major order.
func (t *Tensor) Flatten() []float32 {
	out := make([]float32, 0, InputSize*InputSize*3)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			out = append(out, t[0][y][x][:]...)
		}
	}
	return out
}

// Shape is the tensor shape as sent to model servers.
func Shape() []int {
	return []int{1, InputSize, InputSize, 3}
}

// Package imaging normalizes uploaded photo bytes into the canonical input
// tensor of the embedding model. The pipeline is fully deterministic: the same
// byte sequence always yields the same tensor, which keeps descriptors
// reproducible across indexing and querying.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Decoders for the accepted upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Model input geometry (MobileNet-family convention).
const (
	TargetSize = 224
	Channels   = 3
)

// Pipeline sentinels live here so this package stays dependency-free within
// the module; the domain package re-exports them for the upper layers.
var (
	// ErrUnsupportedImage signals undecodable photo bytes.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrDegenerateImage signals a zero-area or fully uniform photo.
	ErrDegenerateImage = errors.New("degenerate image")
	// ErrDimensionMismatch signals a preprocessed tensor with the wrong shape.
	ErrDimensionMismatch = errors.New("tensor dimension mismatch")
)

// Tensor is the preprocessed model input: CHW float32 in [-1, 1].
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// Shape returns the NCHW shape of the tensor with batch size 1.
func (t *Tensor) Shape() []int64 {
	return []int64{1, int64(t.Channels), int64(t.Height), int64(t.Width)}
}

// Preprocess decodes raw photo bytes and produces the canonical input tensor:
// decode, reject degenerate frames, center-crop to square, Catmull-Rom scale
// to TargetSize, scale channel values to [-1, 1].
func Preprocess(raw []byte) (*Tensor, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty photo payload: %w", ErrUnsupportedImage)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %v: %w", err, ErrUnsupportedImage)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("zero-area %s image: %w", format, ErrDegenerateImage)
	}

	scaled := scaleToTarget(src, centerSquare(b))

	if uniform(scaled) {
		return nil, fmt.Errorf("fully uniform %s image: %w", format, ErrDegenerateImage)
	}

	return toTensor(scaled)
}

// centerSquare returns the largest centered square within bounds.
func centerSquare(b image.Rectangle) image.Rectangle {
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// scaleToTarget crops src to the given square and scales it to TargetSize.
// Catmull-Rom resampling is pure Go and deterministic.
func scaleToTarget(src image.Image, crop image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Src, nil)
	return dst
}

// uniform reports whether every pixel carries the same RGB value.
// A single-color frame has no features to embed and would produce a
// meaningless descriptor.
func uniform(img *image.RGBA) bool {
	px := img.Pix
	if len(px) < 4 {
		return true
	}
	r0, g0, b0 := px[0], px[1], px[2]
	for i := 4; i < len(px); i += 4 {
		if px[i] != r0 || px[i+1] != g0 || px[i+2] != b0 {
			return false
		}
	}
	return true
}

// toTensor converts the scaled frame into CHW float32 scaled to [-1, 1].
func toTensor(img *image.RGBA) (*Tensor, error) {
	b := img.Bounds()
	if b.Dx() != TargetSize || b.Dy() != TargetSize {
		return nil, fmt.Errorf(
			"scaled frame is %dx%d, want %dx%d: %w",
			b.Dx(), b.Dy(), TargetSize, TargetSize, ErrDimensionMismatch,
		)
	}

	data := make([]float32, Channels*TargetSize*TargetSize)
	plane := TargetSize * TargetSize

	for y := 0; y < TargetSize; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < TargetSize; x++ {
			i := x * 4
			pos := y*TargetSize + x
			data[pos] = float32(row[i])/127.5 - 1
			data[plane+pos] = float32(row[i+1])/127.5 - 1
			data[2*plane+pos] = float32(row[i+2])/127.5 - 1
		}
	}

	return &Tensor{
		Width:    TargetSize,
		Height:   TargetSize,
		Channels: Channels,
		Data:     data,
	}, nil
}

// EncodePNG re-encodes the tensor as a canonical PNG. Used by remote
// extractor drivers that ship the normalized frame over the wire; PNG is
// lossless so the remote model sees exactly the preprocessed pixels.
func (t *Tensor) EncodePNG() ([]byte, error) {
	if t.Channels != Channels || len(t.Data) != t.Channels*t.Width*t.Height {
		return nil, fmt.Errorf("malformed tensor: %w", ErrDimensionMismatch)
	}

	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	plane := t.Width * t.Height
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			pos := y*t.Width + x
			i := img.PixOffset(x, y)
			img.Pix[i] = denorm(t.Data[pos])
			img.Pix[i+1] = denorm(t.Data[plane+pos])
			img.Pix[i+2] = denorm(t.Data[2*plane+pos])
			img.Pix[i+3] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// denorm maps a [-1, 1] channel value back to a byte.
func denorm(v float32) uint8 {
	f := (v + 1) * 127.5
	if f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(f + 0.5)
}

package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"
)

// testPhoto renders a deterministic multi-color frame and encodes it.
func testPhoto(t *testing.T, w, h int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(42))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 0xff,
			})
		}
	}
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(buf *bytes.Buffer, img image.Image) error  { return png.Encode(buf, img) }
func encodeJPEG(buf *bytes.Buffer, img image.Image) error { return jpeg.Encode(buf, img, nil) }

func TestPreprocess_ShapeInvariants(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"square", 224, 224},
		{"landscape", 640, 480},
		{"portrait", 200, 500},
		{"tiny", 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := Preprocess(testPhoto(t, tt.w, tt.h, encodePNG))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tensor.Width != TargetSize || tensor.Height != TargetSize || tensor.Channels != Channels {
				t.Fatalf("tensor shape %dx%dx%d, want %dx%dx%d",
					tensor.Channels, tensor.Height, tensor.Width, Channels, TargetSize, TargetSize)
			}
			if len(tensor.Data) != Channels*TargetSize*TargetSize {
				t.Fatalf("data length %d, want %d", len(tensor.Data), Channels*TargetSize*TargetSize)
			}
			for i, v := range tensor.Data {
				if v < -1 || v > 1 {
					t.Fatalf("value %v at %d outside [-1, 1]", v, i)
				}
			}
		})
	}
}

func TestPreprocess_Deterministic(t *testing.T) {
	raw := testPhoto(t, 300, 200, encodeJPEG)

	a, err := Preprocess(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Preprocess(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("non-deterministic output at index %d: %v != %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestPreprocess_CorruptBytes(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, []byte("not an image"), {0xff, 0xd8, 0x00}} {
		_, err := Preprocess(raw)
		if !errors.Is(err, ErrUnsupportedImage) {
			t.Errorf("Preprocess(%d bytes): expected ErrUnsupportedImage, got %v", len(raw), err)
		}
	}
}

func TestPreprocess_UniformImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
		} else {
			img.Pix[i] = 0x7f
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err := Preprocess(buf.Bytes())
	if !errors.Is(err, ErrDegenerateImage) {
		t.Fatalf("expected ErrDegenerateImage, got %v", err)
	}
}

func TestEncodePNG_Roundtrip(t *testing.T) {
	tensor, err := Preprocess(testPhoto(t, 128, 128, encodePNG))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encoded, err := tensor.EncodePNG()
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}

	again, err := Preprocess(encoded)
	if err != nil {
		t.Fatalf("re-preprocess: %v", err)
	}
	if len(again.Data) != len(tensor.Data) {
		t.Fatalf("roundtrip changed tensor size: %d != %d", len(again.Data), len(tensor.Data))
	}
}

func TestEncodePNG_MalformedTensor(t *testing.T) {
	bad := &Tensor{Width: 224, Height: 224, Channels: 3, Data: []float32{1, 2, 3}}
	if _, err := bad.EncodePNG(); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

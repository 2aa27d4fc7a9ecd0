package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/imaging"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterInferenceMetrics()
	os.Exit(m.Run())
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func testTensor(t *testing.T) *imaging.Tensor {
	t.Helper()
	data := make([]float32, imaging.Channels*imaging.TargetSize*imaging.TargetSize)
	for i := range data {
		data[i] = float32(i%255)/127.5 - 1
	}
	return &imaging.Tensor{
		Width:    imaging.TargetSize,
		Height:   imaging.TargetSize,
		Channels: imaging.Channels,
		Data:     data,
	}
}

func embeddingServer(t *testing.T, vec []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 1 || !strings.HasPrefix(req.Input[0], "data:image/png;base64,") {
			t.Errorf("expected one PNG data URI input")
		}

		resp := embeddingResponse{Object: "list", Model: "clip-test"}
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Object: "embedding", Embedding: vec})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestExtract_NormalizedVector(t *testing.T) {
	server := embeddingServer(t, []float32{3, 4, 0})
	defer server.Close()

	ext := NewExtractor(&Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Model:        "clip-test",
		ModelVersion: "clip-vit-b-32-v1",
		Dimensions:   3,
		Logger:       zap.NewNop(),
	})

	result, err := ext.Extract(context.Background(), testTensor(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.ModelVersion != "clip-vit-b-32-v1" {
		t.Errorf("model version = %q", result.ModelVersion)
	}

	var sum float64
	for _, v := range result.Vector {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("vector not unit-normalized: |v|^2 = %v", sum)
	}
}

func TestExtract_DimensionGuard(t *testing.T) {
	server := embeddingServer(t, []float32{1, 0})
	defer server.Close()

	ext := NewExtractor(&Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Model:        "clip-test",
		ModelVersion: "v1",
		Dimensions:   512,
		Logger:       zap.NewNop(),
	})

	_, err := ext.Extract(context.Background(), testTensor(t))
	if !errors.Is(err, domain.ErrDescriptorShapeMismatch) {
		t.Fatalf("expected ErrDescriptorShapeMismatch, got %v", err)
	}
}

func TestExtract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "model crashed"}`))
	}))
	defer server.Close()

	ext := NewExtractor(&Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Model:        "clip-test",
		ModelVersion: "v1",
		Logger:       zap.NewNop(),
	})

	_, err := ext.Extract(context.Background(), testTensor(t))
	if !errors.Is(err, domain.ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("error should carry server detail, got %v", err)
	}
}

func TestExtract_Unreachable(t *testing.T) {
	ext := NewExtractor(&Config{
		APIKey:       "test-key",
		BaseURL:      "http://127.0.0.1:1/v1",
		Model:        "clip-test",
		ModelVersion: "v1",
		Logger:       zap.NewNop(),
	})

	_, err := ext.Extract(context.Background(), testTensor(t))
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

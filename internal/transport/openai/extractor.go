// Package openai extracts descriptors via an OpenAI-compatible embeddings
// endpoint of a CLIP-style image-embedding server (e.g. infinity). The
// preprocessed frame is shipped as a base64 PNG data URI, so the remote
// model sees exactly the canonical pixels and descriptors stay reproducible.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/domain/similarity"
	"github.com/kailas-cloud/petmatch/internal/imaging"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

const driverName = "openai"

// Extractor is a remote feature-extraction driver.
type Extractor struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	version string
	dim     int
	timeout time.Duration
	logger  *zap.Logger
}

// Config holds the remote extractor settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	ModelVersion string
	Dimensions   int
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewExtractor creates an OpenAI-compatible extraction driver.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Extractor{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   openai.EmbeddingModel(cfg.Model),
		version: cfg.ModelVersion,
		dim:     cfg.Dimensions,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Extract implements domain.Extractor with transport-level metrics.
func (e *Extractor) Extract(ctx context.Context, t *imaging.Tensor) (domain.ExtractionResult, error) {
	frame, err := t.EncodePNG()
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("encode frame: %w", err)
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(frame)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := openai.EmbeddingRequest{
		Input:          []string{dataURI},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues(driverName, string(e.model), "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(driverName, string(e.model), "api_error").Inc()
		return domain.ExtractionResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.InferenceRequestsTotal.WithLabelValues(driverName, string(e.model), "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(driverName, string(e.model), "empty_response").Inc()
		return domain.ExtractionResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrInference)
	}

	vector := resp.Data[0].Embedding
	if e.dim > 0 && len(vector) != e.dim {
		metrics.InferenceRequestsTotal.WithLabelValues(driverName, string(e.model), "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(driverName, string(e.model), "shape").Inc()
		return domain.ExtractionResult{}, fmt.Errorf(
			"server produced %d dimensions, configured %d: %w",
			len(vector), e.dim, domain.ErrDescriptorShapeMismatch,
		)
	}

	metrics.InferenceRequestsTotal.WithLabelValues(driverName, string(e.model), "success").Inc()
	metrics.InferenceDuration.WithLabelValues(driverName, string(e.model)).Observe(duration.Seconds())

	return domain.ExtractionResult{
		Vector:       similarity.Normalize(vector),
		ModelVersion: e.version,
	}, nil
}

// ModelVersion identifies the frozen artifact served remotely.
func (e *Extractor) ModelVersion() string { return e.version }

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w: %w", domain.ErrModelUnavailable, err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// Connectivity problems map to ErrModelUnavailable, server-side failures to
// ErrInference, so the HTTP layer can distinguish 502 causes.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrInference)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrInference)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrModelUnavailable)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

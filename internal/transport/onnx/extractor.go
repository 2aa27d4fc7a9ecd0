// Package onnx runs the frozen embedding model in-process via ONNX Runtime.
//
// Sessions with bound tensors are not safe for concurrent Run calls, so the
// extractor holds a bounded pool of sessions and serializes access through
// it. Inference dominates request cost; the pool size trades throughput for
// memory and must be sized against load.
package onnx

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/domain/similarity"
	"github.com/kailas-cloud/petmatch/internal/imaging"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

const driverName = "onnx"

// ortInit guards process-wide ONNX Runtime environment initialization:
// single initialization, no teardown other than process exit.
var ortInit sync.Once

// Config holds the in-process extractor settings.
type Config struct {
	ModelPath    string
	LibraryPath  string
	ModelVersion string
	Dimensions   int
	InputName    string
	OutputName   string
	PoolSize     int
	Logger       *zap.Logger
}

// Extractor converts preprocessed tensors into descriptor vectors using a
// frozen ONNX artifact loaded once at startup.
type Extractor struct {
	sessions   chan *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	version    string
	dim        int
	logger     *zap.Logger
}

// NewExtractor loads the model artifact and builds the session pool.
// Any load failure maps to domain.ErrModelUnavailable.
func NewExtractor(cfg *Config) (*Extractor, error) {
	var initErr error
	ortInit.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %v: %w", initErr, domain.ErrModelUnavailable)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}

	e := &Extractor{
		sessions:   make(chan *ort.DynamicAdvancedSession, poolSize),
		inputName:  cfg.InputName,
		outputName: cfg.OutputName,
		version:    cfg.ModelVersion,
		dim:        cfg.Dimensions,
		logger:     cfg.Logger,
	}

	for i := 0; i < poolSize; i++ {
		session, err := ort.NewDynamicAdvancedSession(
			cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName}, nil,
		)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("load model %s: %v: %w", cfg.ModelPath, err, domain.ErrModelUnavailable)
		}
		e.sessions <- session
	}

	cfg.Logger.Info("ONNX model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("model_version", cfg.ModelVersion),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("pool_size", poolSize),
	)

	return e, nil
}

// Extract implements domain.Extractor. The forward pass never mutates shared
// model state; the session pool only serializes runtime access.
func (e *Extractor) Extract(ctx context.Context, t *imaging.Tensor) (domain.ExtractionResult, error) {
	session, err := e.acquire(ctx)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	defer func() { e.sessions <- session }()

	start := time.Now()
	vector, err := runForward(session, t)
	duration := time.Since(start)

	if err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues(driverName, e.version, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(driverName, e.version, "run").Inc()
		return domain.ExtractionResult{}, fmt.Errorf("forward pass: %v: %w", err, domain.ErrInference)
	}

	if e.dim > 0 && len(vector) != e.dim {
		metrics.InferenceRequestsTotal.WithLabelValues(driverName, e.version, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(driverName, e.version, "shape").Inc()
		return domain.ExtractionResult{}, fmt.Errorf(
			"model produced %d dimensions, configured %d: %w",
			len(vector), e.dim, domain.ErrDescriptorShapeMismatch,
		)
	}

	metrics.InferenceRequestsTotal.WithLabelValues(driverName, e.version, "success").Inc()
	metrics.InferenceDuration.WithLabelValues(driverName, e.version).Observe(duration.Seconds())

	return domain.ExtractionResult{
		Vector:       similarity.Normalize(vector),
		ModelVersion: e.version,
	}, nil
}

// ModelVersion identifies the loaded frozen artifact.
func (e *Extractor) ModelVersion() string { return e.version }

// HealthCheck verifies a session can be acquired.
func (e *Extractor) HealthCheck(ctx context.Context) error {
	session, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	e.sessions <- session
	return nil
}

// Close destroys the pooled sessions. The runtime environment itself stays
// initialized for the process lifetime.
func (e *Extractor) Close() {
	for {
		select {
		case session := <-e.sessions:
			if err := session.Destroy(); err != nil && e.logger != nil {
				e.logger.Warn("destroy session", zap.Error(err))
			}
		default:
			return
		}
	}
}

// acquire takes a session from the pool, honoring caller cancellation.
func (e *Extractor) acquire(ctx context.Context) (*ort.DynamicAdvancedSession, error) {
	select {
	case session := <-e.sessions:
		return session, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire inference session: %w: %w", ctx.Err(), domain.ErrModelUnavailable)
	}
}

// runForward executes one inference call on an exclusively held session.
func runForward(session *ort.DynamicAdvancedSession, t *imaging.Tensor) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(t.Shape()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("model output is not a float32 tensor")
	}

	// Copy out of the runtime-owned buffer before Destroy.
	data := out.GetData()
	vector := make([]float32, len(data))
	copy(vector, data)
	return vector, nil
}

package petmatch

import (
	"time"

	"go.uber.org/zap"
)

// clientConfig collects embedded-client settings.
type clientConfig struct {
	addrs    []string
	username string
	password string

	keyPrefix  string
	dimensions int

	hnswM           int
	hnswEFConstruct int

	topK          int
	minConfidence float64
	oversample    int

	onnxModelPath   string
	onnxLibraryPath string
	onnxPoolSize    int
	modelVersion    string

	remoteBaseURL string
	remoteAPIKey  string
	remoteModel   string
	remoteTimeout time.Duration

	extractor Extractor
	logger    *zap.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithRedis sets the Redis connection for descriptor and event storage.
func WithRedis(addrs []string, password string) Option {
	return func(c *clientConfig) {
		c.addrs = addrs
		c.password = password
	}
}

// WithKeyPrefix sets the storage key prefix (default "petmatch:").
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithDimensions sets the descriptor dimensionality (default 1280).
func WithDimensions(dim int) Option {
	return func(c *clientConfig) { c.dimensions = dim }
}

// WithHNSW sets index build parameters.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithPolicy sets the acceptance policy (defaults: top 5, 0.75).
func WithPolicy(topK int, minConfidence float64) Option {
	return func(c *clientConfig) {
		c.topK = topK
		c.minConfidence = minConfidence
	}
}

// WithONNXModel selects the in-process ONNX driver.
func WithONNXModel(modelPath, libraryPath, modelVersion string, poolSize int) Option {
	return func(c *clientConfig) {
		c.onnxModelPath = modelPath
		c.onnxLibraryPath = libraryPath
		c.modelVersion = modelVersion
		c.onnxPoolSize = poolSize
	}
}

// WithRemoteEmbedding selects a remote OpenAI-compatible image-embedding server.
func WithRemoteEmbedding(baseURL, apiKey, model, modelVersion string) Option {
	return func(c *clientConfig) {
		c.remoteBaseURL = baseURL
		c.remoteAPIKey = apiKey
		c.remoteModel = model
		c.modelVersion = modelVersion
	}
}

// WithRemoteTimeout bounds remote embedding requests.
func WithRemoteTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.remoteTimeout = d }
}

// WithExtractor plugs a custom extraction driver. Takes precedence over the
// built-in drivers.
func WithExtractor(e Extractor) Option {
	return func(c *clientConfig) { c.extractor = e }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

package domain

import (
	"errors"

	"github.com/kailas-cloud/petmatch/internal/imaging"
)

var (
	// Image pipeline sentinels are homed in imaging, which cannot depend back
	// on this package; re-exported so every layer matches the same values.

	// ErrUnsupportedImage signals undecodable photo bytes.
	ErrUnsupportedImage = imaging.ErrUnsupportedImage
	// ErrDegenerateImage signals a zero-area or fully uniform photo.
	ErrDegenerateImage = imaging.ErrDegenerateImage
	// ErrDimensionMismatch signals a preprocessed tensor with the wrong shape.
	ErrDimensionMismatch = imaging.ErrDimensionMismatch

	// ErrModelUnavailable signals that the embedding model cannot be loaded or reached.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrInference signals a runtime failure during the model forward pass.
	ErrInference = errors.New("inference failed")

	// ErrDescriptorShapeMismatch signals descriptors of incompatible dimensionality.
	// Indicates a model-version inconsistency: an operational alarm, never retried.
	ErrDescriptorShapeMismatch = errors.New("descriptor shape mismatch")
	// ErrDescriptorNotFound signals a missing descriptor.
	ErrDescriptorNotFound = errors.New("descriptor not found")

	// ErrStoreUnavailable signals a storage-layer failure. Retryable by the caller.
	ErrStoreUnavailable = errors.New("descriptor store unavailable")

	// ErrReportRetired signals an indexing attempt for an already resolved/withdrawn report.
	ErrReportRetired = errors.New("report is retired")
	// ErrInvalidRequest signals a malformed ingestion or query request.
	ErrInvalidRequest = errors.New("invalid request")
)

package chi

// errorCode enumerates machine-readable error identifiers on the wire.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeUnsupportedImage errorCode = "unsupported_image"
	codeDegenerateImage  errorCode = "degenerate_image"
	codeReportRetired    errorCode = "report_retired"
	codeShapeMismatch    errorCode = "descriptor_shape_mismatch"
	codeNotFound         errorCode = "descriptor_not_found"
	codeModelUnavailable errorCode = "model_unavailable"
	codeInferenceFailed  errorCode = "inference_failed"
	codeStoreUnavailable errorCode = "store_unavailable"
	codeInternalError    errorCode = "internal_error"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// indexPhotoRequest is the POST /v1/photos body. Photo carries the raw image
// bytes base64-encoded.
type indexPhotoRequest struct {
	PhotoID      string `json:"photo_id"`
	ReportID     string `json:"report_id"`
	ReportStatus string `json:"report_status"`
	Category     string `json:"category,omitempty"`
	Photo        string `json:"photo"`
}

// descriptorResponse summarizes a stored descriptor. The vector itself never
// leaves the service.
type descriptorResponse struct {
	PhotoID      string `json:"photo_id"`
	ReportID     string `json:"report_id"`
	Category     string `json:"category,omitempty"`
	ModelVersion string `json:"model_version"`
	Dimensions   int    `json:"dimensions"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
}

// retireResponse is the POST /v1/reports/{reportID}/retire body.
type retireResponse struct {
	ReportID string `json:"report_id"`
	Retired  int    `json:"retired"`
}

// matchRequest is the POST /v1/matches body.
type matchRequest struct {
	ReportID string `json:"report_id"`
	Category string `json:"category,omitempty"`
	Photo    string `json:"photo"`
	// Notify records and delivers match events for accepted candidates.
	Notify bool `json:"notify,omitempty"`
}

// matchItem is one ranked candidate on the wire.
type matchItem struct {
	Rank       int     `json:"rank"`
	ReportID   string  `json:"report_id"`
	PhotoID    string  `json:"photo_id"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// matchEventItem is one recorded match event on the wire.
type matchEventItem struct {
	ID                string  `json:"id"`
	PairKey           string  `json:"pair_key"`
	QueryReportID     string  `json:"query_report_id"`
	CandidateReportID string  `json:"candidate_report_id"`
	Confidence        float64 `json:"confidence"`
}

// matchResponse is the POST /v1/matches response.
type matchResponse struct {
	Matches []matchItem      `json:"matches"`
	Events  []matchEventItem `json:"events,omitempty"`
}

// modelVersionsResponse reports descriptor counts per model version.
type modelVersionsResponse struct {
	Versions map[string]int `json:"versions"`
}

// populationResponse reports the active descriptor population size.
type populationResponse struct {
	Category string `json:"category,omitempty"`
	Active   int    `json:"active"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

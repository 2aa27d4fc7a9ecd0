// Package webhook delivers match events to an external endpoint. The rest of
// the system treats delivery as best-effort: a failed POST is reported to the
// caller but never rolls back the recorded event.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// Deliverer posts match events to a configured webhook URL.
type Deliverer struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// eventPayload is the outbound wire shape of a match event.
type eventPayload struct {
	ID                string  `json:"id"`
	PairKey           string  `json:"pair_key"`
	QueryReportID     string  `json:"query_report_id"`
	CandidateReportID string  `json:"candidate_report_id"`
	Confidence        float64 `json:"confidence"`
	CreatedAt         string  `json:"created_at"`
}

// NewDeliverer creates a webhook deliverer with a bounded request timeout.
func NewDeliverer(url string, timeout time.Duration, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Deliver posts one event. Non-2xx responses count as delivery failures.
func (d *Deliverer) Deliver(ctx context.Context, event domain.MatchEvent) error {
	payload := eventPayload{
		ID:                event.ID,
		PairKey:           event.PairKey,
		QueryReportID:     event.QueryReportID,
		CandidateReportID: event.CandidateReportID,
		Confidence:        event.Confidence,
		CreatedAt:         event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}

	d.logger.Debug("match event delivered",
		zap.String("event_id", event.ID),
		zap.String("pair_key", event.PairKey),
	)
	return nil
}

// LogDeliverer records events in the service log only. Used when no webhook
// URL is configured.
type LogDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer creates a log-only deliverer.
func NewLogDeliverer(logger *zap.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

// Deliver logs the event and always succeeds.
func (d *LogDeliverer) Deliver(_ context.Context, event domain.MatchEvent) error {
	d.logger.Info("match event",
		zap.String("event_id", event.ID),
		zap.String("pair_key", event.PairKey),
		zap.String("query_report_id", event.QueryReportID),
		zap.String("candidate_report_id", event.CandidateReportID),
		zap.Float64("confidence", event.Confidence),
	)
	return nil
}

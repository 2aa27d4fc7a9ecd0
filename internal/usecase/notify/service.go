// Package notify converts accepted match candidates into deduplicated match
// events and hands them to delivery. Event creation is the source of truth;
// delivery is best-effort and never blocks or reverses a recorded event.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

// Service records and delivers match events.
type Service struct {
	events    EventStore
	deliverer Deliverer
	threshold float64
	logger    *zap.Logger
}

// New creates a notification service. threshold mirrors the matching policy's
// minimum confidence so a candidate list from a looser caller still cannot
// produce sub-threshold events.
func New(events EventStore, deliverer Deliverer, threshold float64, logger *zap.Logger) *Service {
	return &Service{events: events, deliverer: deliverer, threshold: threshold, logger: logger}
}

// OnMatches processes the candidates of one match query for the querying
// report. Each new pair produces exactly one event; pairs recorded earlier
// (in either query direction) are silently skipped. Returns the events
// created by this call. Storage failures abort; delivery failures are logged
// and the event stands.
func (s *Service) OnMatches(
	ctx context.Context, queryReportID string, candidates []domain.MatchCandidate,
) ([]domain.MatchEvent, error) {
	if queryReportID == "" {
		return nil, fmt.Errorf("query report id is required: %w", domain.ErrInvalidRequest)
	}

	var created []domain.MatchEvent
	var errs error

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return created, fmt.Errorf("notification canceled: %w", err)
		}
		if c.ReportID == queryReportID {
			continue
		}
		if c.Confidence < s.threshold {
			continue
		}

		ev := domain.NewMatchEvent(queryReportID, c.ReportID, c.Confidence)

		ok, err := s.events.Create(ctx, &ev)
		if err != nil {
			metrics.MatchEventsTotal.WithLabelValues("error").Inc()
			errs = errors.Join(errs, fmt.Errorf("record event %s: %w", ev.PairKey, err))
			continue
		}
		if !ok {
			metrics.MatchEventsTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		metrics.MatchEventsTotal.WithLabelValues("created").Inc()
		created = append(created, ev)

		if err := s.deliverer.Deliver(ctx, ev); err != nil {
			metrics.DeliveriesTotal.WithLabelValues("error").Inc()
			s.logger.Warn("match event delivery failed",
				zap.String("event_id", ev.ID),
				zap.String("pair_key", ev.PairKey),
				zap.Error(err),
			)
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
	}

	return created, errs
}

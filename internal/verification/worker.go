package verification

import (
	"context"
	"log/slog"
	"time"

	"userapi/internal/platform/metrics"
	"userapi/pkg/apperrors"
)

// Assigner is the background poller: every period it sweeps the unassigned
// Sent requests and hands each to the least-loaded eligible accountable. A
// sweep that assigns nothing is a normal outcome, repeated until staff exist.
type Assigner struct {
	service *Service
	period  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAssigner(service *Service, period time.Duration, m *metrics.Metrics, logger *slog.Logger) *Assigner {
	return &Assigner{service: service, period: period, metrics: m, logger: logger}
}

func (a *Assigner) Run(ctx context.Context) error {
	a.logger.Info("assigner started", "period", a.period)
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Assigner) sweep(ctx context.Context) {
	if a.metrics != nil {
		a.metrics.AssignerRuns.Inc()
	}
	unassigned, err := a.service.store.ListUnassigned(ctx)
	if err != nil {
		a.logger.Error("list unassigned requests", "error", err)
		return
	}
	for _, req := range unassigned {
		if _, err := a.service.Assign(ctx, req.ID, nil); err != nil {
			// No eligible accountable is expected when no staff exist yet;
			// the request is retried on the next sweep.
			if apperrors.CodeOf(err) == apperrors.CodeBadRequest {
				continue
			}
			a.logger.Error("assign request", "request_id", req.ID, "error", err)
		}
	}
}

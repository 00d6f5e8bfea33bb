package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

const maxParallelSends = 8

// DeliveryReport counts per-endpoint outcomes of one dispatch.
type DeliveryReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pruned    int `json:"pruned"`
	Skipped   int `json:"skipped"`
}

func (r *DeliveryReport) add(other DeliveryReport) {
	r.Delivered += other.Delivered
	r.Failed += other.Failed
	r.Pruned += other.Pruned
	r.Skipped += other.Skipped
}

// Dispatcher fans a notification out to a user's endpoints.
type Dispatcher struct {
	endpoints ports.EndpointRepository
	channels  map[domain.EndpointKind]ports.Channel
	linkBase  string
	metrics   ports.Metrics
	logger    *slog.Logger
}

// NewDispatcher registers one channel per endpoint kind; nil channels are ignored.
func NewDispatcher(endpoints ports.EndpointRepository, channels []ports.Channel, linkBase string, metrics ports.Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	byKind := make(map[domain.EndpointKind]ports.Channel, len(channels))
	for _, ch := range channels {
		if ch != nil {
			byKind[ch.Kind()] = ch
		}
	}
	return &Dispatcher{
		endpoints: endpoints,
		channels:  byKind,
		linkBase:  strings.TrimRight(linkBase, "/"),
		metrics:   metrics,
		logger:    logger,
	}
}

// Dispatch sends n to every endpoint concurrently. Endpoints reported dead are deleted
// before Dispatch returns, so the next cycle never sees them.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification, endpoints []domain.Endpoint) DeliveryReport {
	payload := d.payload(n)

	var (
		mu     sync.Mutex
		report DeliveryReport
		g      errgroup.Group
	)
	g.SetLimit(maxParallelSends)
	for _, endpoint := range endpoints {
		endpoint := endpoint
		g.Go(func() error {
			result := d.send(ctx, endpoint, payload)
			mu.Lock()
			report.add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.logger.InfoContext(ctx, "notification dispatched",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"pruned", report.Pruned)
	return report
}

func (d *Dispatcher) send(ctx context.Context, endpoint domain.Endpoint, payload domain.PushPayload) DeliveryReport {
	ch, ok := d.channels[endpoint.Kind]
	if !ok {
		return DeliveryReport{Skipped: 1}
	}

	outcome := ch.Send(ctx, endpoint, payload)
	d.metrics.CountDelivery(endpoint.Kind, outcome.Status)

	switch outcome.Status {
	case domain.DeliveryDelivered:
		return DeliveryReport{Delivered: 1}
	case domain.DeliveryDead:
		if err := d.endpoints.Delete(ctx, endpoint); err != nil {
			d.logger.ErrorContext(ctx, "dead endpoint not pruned", "endpoint_id", endpoint.ID, "error", err)
			return DeliveryReport{Failed: 1}
		}
		d.logger.InfoContext(ctx, "dead endpoint pruned",
			"endpoint_id", endpoint.ID, "kind", endpoint.Kind, "status", outcome.StatusCode, "reason", outcome.Reason)
		return DeliveryReport{Failed: 1, Pruned: 1}
	default:
		d.logger.WarnContext(ctx, "delivery failed", "endpoint_id", endpoint.ID, "kind", endpoint.Kind, "error", outcome.Err)
		return DeliveryReport{Failed: 1}
	}
}

func (d *Dispatcher) payload(n domain.Notification) domain.PushPayload {
	p := domain.PushPayload{
		Title:          n.Title,
		Body:           n.Body,
		NotificationID: n.ID,
		ContentIDs:     []uuid.UUID{n.LinkedContentID},
		Priority:       n.Priority,
	}
	if d.linkBase != "" {
		p.URL = d.linkBase + "/content/" + n.LinkedContentID.String()
	}
	return p
}

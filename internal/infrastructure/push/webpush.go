package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// WebPushChannel sends VAPID-signed, encrypted messages to browser push services.
type WebPushChannel struct {
	cfg    config.WebPushConfig
	client *http.Client
	logger *slog.Logger
}

var _ ports.Channel = (*WebPushChannel)(nil)

// NewWebPushChannel builds the web channel. A nil client means http.DefaultClient.
func NewWebPushChannel(cfg config.WebPushConfig, client *http.Client, logger *slog.Logger) *WebPushChannel {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WebPushChannel{cfg: cfg, client: client, logger: logger}
}

func (c *WebPushChannel) Kind() domain.EndpointKind { return domain.EndpointWeb }

// Send delivers payload to endpoint. 404 and 410 mean the subscription is gone.
func (c *WebPushChannel) Send(ctx context.Context, endpoint domain.Endpoint, payload domain.PushPayload) domain.DeliveryOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: fmt.Errorf("encode payload: %w", err)}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: endpoint.URL,
		Keys:     webpush.Keys{Auth: endpoint.Auth, P256dh: endpoint.P256dh},
	}, &webpush.Options{
		HTTPClient:      c.client,
		Subscriber:      c.cfg.Subscriber,
		TTL:             c.cfg.TTL,
		Urgency:         urgency(payload.Priority),
		VAPIDPublicKey:  c.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: c.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: fmt.Errorf("web push: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.DeliveryOutcome{Status: domain.DeliveryDelivered, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return domain.DeliveryOutcome{
			Status:     domain.DeliveryDead,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
			Err:        domain.ErrDeadEndpoint,
		}
	default:
		c.logger.WarnContext(ctx, "web push rejected", "endpoint_id", endpoint.ID, "status", resp.StatusCode)
		return domain.DeliveryOutcome{
			Status:     domain.DeliveryTransient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("web push: unexpected status %d", resp.StatusCode),
		}
	}
}

func urgency(priority int) webpush.Urgency {
	switch {
	case priority >= domain.MaxPriority:
		return webpush.UrgencyHigh
	case priority <= 2:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}

package push

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// Reasons the gateway gives for a token that will never work again.
var deadTokenReasons = map[string]bool{
	"BadDeviceToken":         true,
	"DeviceTokenNotForTopic": true,
	"Unregistered":           true,
}

// ProviderToken caches the ES256 provider JWT and re-signs it only after it expires.
type ProviderToken struct {
	teamID string
	keyID  string
	key    *ecdsa.PrivateKey
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewProviderToken parses the .p8 key in PEM form.
func NewProviderToken(teamID, keyID, privateKeyPEM string, ttl time.Duration) (*ProviderToken, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse apns key: %w", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		ttl = 55 * time.Minute
	}
	return &ProviderToken{teamID: teamID, keyID: keyID, key: key, ttl: ttl, now: time.Now}, nil
}

// Bearer returns a valid token, signing a new one when the cached one is older than the TTL.
func (p *ProviderToken) Bearer() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && now.Sub(p.issuedAt) < p.ttl {
		return p.token, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:   p.teamID,
		IssuedAt: jwt.NewNumericDate(now),
	})
	token.Header["kid"] = p.keyID
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign provider token: %w", err)
	}
	p.token, p.issuedAt = signed, now
	return signed, nil
}

// Invalidate drops the cached token so the next call signs a fresh one.
func (p *ProviderToken) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// APNsChannel posts alerts to the Apple push gateway per device token.
type APNsChannel struct {
	gateway string
	topic   string
	tokens  *ProviderToken
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.Channel = (*APNsChannel)(nil)

// NewAPNsChannel builds the native channel from config.
func NewAPNsChannel(cfg config.APNsConfig, client *http.Client, logger *slog.Logger) (*APNsChannel, error) {
	tokens, err := NewProviderToken(cfg.TeamID, cfg.KeyID, cfg.PrivateKey, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	return newAPNsChannel(cfg.Gateway, cfg.Topic, tokens, client, logger), nil
}

func newAPNsChannel(gateway, topic string, tokens *ProviderToken, client *http.Client, logger *slog.Logger) *APNsChannel {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &APNsChannel{
		gateway: strings.TrimRight(gateway, "/"),
		topic:   topic,
		tokens:  tokens,
		client:  client,
		logger:  logger,
	}
}

func (c *APNsChannel) Kind() domain.EndpointKind { return domain.EndpointNative }

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsAps struct {
	Alert apnsAlert `json:"alert"`
	Sound string    `json:"sound,omitempty"`
}

type apnsPayload struct {
	Aps            apnsAps     `json:"aps"`
	URL            string      `json:"url,omitempty"`
	NotificationID uuid.UUID   `json:"notificationId"`
	ContentIDs     []uuid.UUID `json:"contentIds"`
}

type apnsError struct {
	Reason string `json:"reason"`
}

// Send posts one alert. 410 or an invalid-token reason marks the token dead.
func (c *APNsChannel) Send(ctx context.Context, endpoint domain.Endpoint, payload domain.PushPayload) domain.DeliveryOutcome {
	bearer, err := c.tokens.Bearer()
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: err}
	}

	body, err := json.Marshal(apnsPayload{
		Aps:            apnsAps{Alert: apnsAlert{Title: payload.Title, Body: payload.Body}, Sound: "default"},
		URL:            payload.URL,
		NotificationID: payload.NotificationID,
		ContentIDs:     payload.ContentIDs,
	})
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway+"/3/device/"+endpoint.Token, bytes.NewReader(body))
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: err}
	}
	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", c.topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", apnsPriority(payload.Priority))
	req.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.DeliveryOutcome{Status: domain.DeliveryTransient, Err: fmt.Errorf("apns: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return domain.DeliveryOutcome{Status: domain.DeliveryDelivered, StatusCode: resp.StatusCode}
	}

	var apiErr apnsError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)

	if resp.StatusCode == http.StatusGone || deadTokenReasons[apiErr.Reason] {
		return domain.DeliveryOutcome{
			Status:     domain.DeliveryDead,
			StatusCode: resp.StatusCode,
			Reason:     apiErr.Reason,
			Err:        domain.ErrDeadEndpoint,
		}
	}
	if resp.StatusCode == http.StatusForbidden && apiErr.Reason == "ExpiredProviderToken" {
		c.tokens.Invalidate()
	}
	c.logger.WarnContext(ctx, "apns rejected", "endpoint_id", endpoint.ID, "status", resp.StatusCode, "reason", apiErr.Reason)
	return domain.DeliveryOutcome{
		Status:     domain.DeliveryTransient,
		StatusCode: resp.StatusCode,
		Reason:     apiErr.Reason,
		Err:        errors.New("apns: " + strings.TrimSpace(resp.Status+" "+apiErr.Reason)),
	}
}

func apnsPriority(priority int) string {
	if priority >= domain.MaxPriority {
		return "10"
	}
	return "5"
}

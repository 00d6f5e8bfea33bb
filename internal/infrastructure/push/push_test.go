package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
)

func webEndpoint(url string) domain.Endpoint {
	return domain.Endpoint{
		ID:     uuid.New(),
		Kind:   domain.EndpointWeb,
		URL:    url,
		P256dh: "BNNL5ZaTfK81qhXOx23-wewhigUeFb632jN6LvRWCFH1ubQr77FE_9qV1FuojuRmHP42zmf34rXgW80OvUVDgTk",
		Auth:   "zqbxT6JKstKSY9JKibZLSQ",
	}
}

func TestWebPushChannelOutcomes(t *testing.T) {
	t.Parallel()

	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	cfg := config.WebPushConfig{VAPIDPublicKey: public, VAPIDPrivateKey: private, Subscriber: "ops@example.com", TTL: 60}

	cases := []struct {
		name   string
		status int
		want   domain.DeliveryStatus
	}{
		{"created", http.StatusCreated, domain.DeliveryDelivered},
		{"gone", http.StatusGone, domain.DeliveryDead},
		{"not found", http.StatusNotFound, domain.DeliveryDead},
		{"throttled", http.StatusTooManyRequests, domain.DeliveryTransient},
		{"server error", http.StatusBadGateway, domain.DeliveryTransient},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotUrgency, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUrgency = r.Header.Get("Urgency")
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			ch := NewWebPushChannel(cfg, srv.Client(), nil)
			out := ch.Send(context.Background(), webEndpoint(srv.URL+"/push/abc"), domain.PushPayload{Title: "t", Body: "b", Priority: 5})

			assert.Equal(t, tc.want, out.Status)
			assert.Equal(t, tc.status, out.StatusCode)
			assert.Equal(t, "high", gotUrgency)
			assert.True(t, strings.HasPrefix(gotAuth, "vapid t="), gotAuth)
			if tc.want == domain.DeliveryDead {
				assert.ErrorIs(t, out.Err, domain.ErrDeadEndpoint)
			}
		})
	}
}

func TestWebPushChannelNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	ch := NewWebPushChannel(config.WebPushConfig{VAPIDPublicKey: public, VAPIDPrivateKey: private}, nil, nil)

	out := ch.Send(context.Background(), webEndpoint(url+"/push"), domain.PushPayload{Priority: 3})
	assert.Equal(t, domain.DeliveryTransient, out.Status)
	assert.Error(t, out.Err)
}

func TestUrgency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, webpush.UrgencyHigh, urgency(5))
	assert.Equal(t, webpush.UrgencyNormal, urgency(3))
	assert.Equal(t, webpush.UrgencyLow, urgency(1))
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestProviderTokenIsCachedUntilTTL(t *testing.T) {
	t.Parallel()

	key, pemKey := testKey(t)
	tokens, err := NewProviderToken("TEAM123", "KEY456", pemKey, 55*time.Minute)
	require.NoError(t, err)

	now := time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	first, err := tokens.Bearer()
	require.NoError(t, err)

	now = now.Add(54 * time.Minute)
	second, err := tokens.Bearer()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(2 * time.Minute)
	third, err := tokens.Bearer()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	parsed, err := jwt.ParseWithClaims(third, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	assert.Equal(t, "KEY456", parsed.Header["kid"])
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "TEAM123", claims.Issuer)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestNewProviderTokenRejectsBadKey(t *testing.T) {
	t.Parallel()

	_, err := NewProviderToken("team", "key", "not a key", time.Minute)
	assert.Error(t, err)
}

func TestAPNsChannelSend(t *testing.T) {
	t.Parallel()

	_, pemKey := testKey(t)
	notificationID := uuid.New()
	contentID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("authorization"), "bearer "))
		assert.Equal(t, "com.example.patchradar", r.Header.Get("apns-topic"))
		assert.Equal(t, "alert", r.Header.Get("apns-push-type"))

		switch r.URL.Path {
		case "/3/device/good":
			assert.Equal(t, "10", r.Header.Get("apns-priority"))
			raw, _ := io.ReadAll(r.Body)
			var body apnsPayload
			assert.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "Patch 1.2", body.Aps.Alert.Title)
			assert.Equal(t, notificationID, body.NotificationID)
			assert.Equal(t, []uuid.UUID{contentID}, body.ContentIDs)
			w.WriteHeader(http.StatusOK)
		case "/3/device/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"reason":"BadDeviceToken"}`))
		case "/3/device/gone":
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"reason":"Unregistered","timestamp":1700000000000}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"reason":"ServiceUnavailable"}`))
		}
	}))
	defer srv.Close()

	ch, err := NewAPNsChannel(config.APNsConfig{
		TeamID:     "TEAM",
		KeyID:      "KEY",
		PrivateKey: pemKey,
		Topic:      "com.example.patchradar",
		Gateway:    srv.URL + "/",
		TokenTTL:   55 * time.Minute,
	}, srv.Client(), nil)
	require.NoError(t, err)

	payload := domain.PushPayload{
		Title:          "Patch 1.2",
		Body:           "Rifles nerfed",
		NotificationID: notificationID,
		ContentIDs:     []uuid.UUID{contentID},
		Priority:       5,
	}
	native := func(token string) domain.Endpoint {
		return domain.Endpoint{ID: uuid.New(), Kind: domain.EndpointNative, Token: token, Platform: "ios"}
	}

	assert.Equal(t, domain.DeliveryDelivered, ch.Send(context.Background(), native("good"), payload).Status)

	bad := ch.Send(context.Background(), native("bad"), payload)
	assert.Equal(t, domain.DeliveryDead, bad.Status)
	assert.Equal(t, "BadDeviceToken", bad.Reason)

	assert.Equal(t, domain.DeliveryDead, ch.Send(context.Background(), native("gone"), payload).Status)

	busy := ch.Send(context.Background(), native("busy"), payload)
	assert.Equal(t, domain.DeliveryTransient, busy.Status)
	assert.Equal(t, http.StatusServiceUnavailable, busy.StatusCode)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EndpointKind selects the delivery channel protocol.
type EndpointKind string

const (
	EndpointWeb    EndpointKind = "web"
	EndpointNative EndpointKind = "native"
)

// Endpoint is a registered delivery target. Web endpoints use URL and keys,
// native endpoints use Token and Platform.
type Endpoint struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      EndpointKind
	URL       string
	P256dh    string
	Auth      string
	Token     string
	Platform  string
	CreatedAt time.Time
}

// DeliveryStatus classifies a single send attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryTransient DeliveryStatus = "transient"
	DeliveryDead      DeliveryStatus = "dead"
)

// DeliveryOutcome is what a channel reports for one endpoint.
type DeliveryOutcome struct {
	Status     DeliveryStatus
	StatusCode int
	Reason     string
	Err        error
}

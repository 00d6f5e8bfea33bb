package usecase

import (
	"time"

	"PatchRadar/internal/domain"
)

type nopMetrics struct{}

func (nopMetrics) ObserveTask(string, time.Duration, error)                 {}
func (nopMetrics) CountAdmission(string)                                    {}
func (nopMetrics) CountEnrichment(domain.JobStatus)                         {}
func (nopMetrics) CountDelivery(domain.EndpointKind, domain.DeliveryStatus) {}

package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var healthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "recengine_health_check_status",
	Help: "Health check status (1 = healthy, 0 = unhealthy)",
}, []string{"service"})

// Pinger reports per-dependency reachability.
type Pinger interface {
	Ping(ctx context.Context) map[string]error
}

// EventBusStats exposes consumer statistics of the event bus.
type EventBusStats interface {
	GetMetrics() map[string]interface{}
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Queue       *QueueHealth           `json:"dna_queue,omitempty"`
	EventBus    map[string]interface{} `json:"event_bus,omitempty"`
	Latency     time.Duration          `json:"latency"`
}

type QueueHealth struct {
	Running bool `json:"running"`
	Pending int  `json:"pending"`
}

// HealthService treats PostgreSQL as critical; everything else only degrades.
type HealthService struct {
	db     Pinger
	queue  DNAQueueInterface
	events EventBusStats
	logger *logrus.Logger
}

func NewHealthService(db Pinger, queue DNAQueueInterface, logger *logrus.Logger) *HealthService {
	return &HealthService{db: db, queue: queue, logger: logger}
}

// WithEventBus adds the event consumer to the report. Consumer errors since the
// previous check degrade the status.
func (s *HealthService) WithEventBus(events EventBusStats) *HealthService {
	s.events = events
	return s
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	for name, err := range s.db.Ping(ctx) {
		if err == nil {
			status.Services[name] = "healthy"
			healthCheckStatus.WithLabelValues(name).Set(1)
			continue
		}
		status.Services[name] = "unhealthy"
		healthCheckStatus.WithLabelValues(name).Set(0)
		if name == "postgresql" {
			status.Critical = append(status.Critical, name)
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
		} else {
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
		}
	}

	if s.queue != nil {
		qs := s.queue.Status()
		status.Queue = &QueueHealth{Running: qs.Running, Pending: qs.Pending()}
		if !qs.Running {
			status.NonCritical = append(status.NonCritical, "dna_queue")
		}
	}

	if s.events != nil {
		status.EventBus = s.events.GetMetrics()
		if n, _ := status.EventBus["errors"].(int64); n > 0 {
			status.NonCritical = append(status.NonCritical, "event_bus")
			s.logger.WithField("errors", n).Warn("Event bus consumer reported errors")
		}
	}

	switch {
	case len(status.Critical) > 0:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)
	return status
}

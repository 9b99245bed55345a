// Package runtime wires the sync pipeline into a runnable service: local
// store, broker client, producer, drain consumer, registration fan-out, and
// the monitoring sidecars.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attendify/syncbridge/internal/broker"
	"github.com/attendify/syncbridge/internal/calendar"
	"github.com/attendify/syncbridge/internal/consumer"
	"github.com/attendify/syncbridge/internal/locks"
	configpkg "github.com/attendify/syncbridge/internal/pipeline/config"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/producer"
	"github.com/attendify/syncbridge/internal/registration"
	"github.com/attendify/syncbridge/internal/sidecar"
	"github.com/attendify/syncbridge/internal/store"
)

// ServiceDependencies holds optional collaborators. Leave fields nil to use
// the defaults built from the configuration.
type ServiceDependencies struct {
	// Store overrides the SQLite record store, e.g. with an in-memory store
	// for tests.
	Store store.Store
	// Calendar overrides the REST calendar source.
	Calendar calendar.Source
	// Registerer overrides where pipeline metrics are registered.
	Registerer prometheus.Registerer
}

// Service bundles the pipeline components behind one lifecycle. Build it with
// NewService, invoke the Producer and Registrar from application code, and
// call Run to operate the drain loop, heartbeat, and metrics endpoint.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	Producer    *producer.Producer
	Registrar   *registration.Registrar
	Drainer     *consumer.Drainer
	Controlroom *sidecar.ControlroomLogger
	Locks       *locks.Registry

	store     store.Store
	broker    *broker.Client
	heartbeat *sidecar.Heartbeat
	metrics   *metricspkg.PipelineMetrics
	registry  *prometheus.Registry
}

// NewService builds the full pipeline or panics. Use TryNewService when the
// caller wants to handle construction errors.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService builds the full pipeline from the configuration.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info("creating sync service", loggingpkg.LogFields{"config": conf})

	s := &Service{Conf: conf, Logger: log, Locks: locks.NewRegistry()}

	registerer := deps.Registerer
	if registerer == nil {
		s.registry = prometheus.NewRegistry()
		registerer = s.registry
	}
	s.metrics = metricspkg.New(registerer)
	if err := s.metrics.Register(); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	s.store = deps.Store
	if s.store == nil {
		st, err := store.OpenSQLite(conf.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening record store: %w", err)
		}
		s.store = st
	}

	s.broker = broker.NewClient(conf, log)

	s.Producer = producer.New(s.broker, s.Locks, conf.StagingTTL, log, s.metrics)

	applier := consumer.NewApplier(s.store, s.Locks, log, s.metrics)
	s.Drainer = consumer.NewDrainer(s.broker, broker.InboundUserBindings, applier,
		conf.PrefetchCount, conf.DrainIdleWait, log, s.metrics)

	cal := deps.Calendar
	if cal == nil {
		cal = calendar.NewClient(conf.CalendarBaseURL)
	}
	registrar, err := registration.NewRegistrar(s.store, s.broker, cal, conf.CalendarID, log, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("building registrar: %w", err)
	}
	s.Registrar = registrar

	s.Controlroom = sidecar.NewControlroomLogger(s.broker, conf.ServiceName,
		configpkg.DefaultSidecarRetries, configpkg.DefaultSidecarRetryDelay, log)
	s.heartbeat = sidecar.NewHeartbeat(s.broker, conf.ServiceName, conf.HeartbeatInterval, log)

	return s, nil
}

// Store exposes the record store, mainly so application code can query what
// the drain has applied.
func (s *Service) Store() store.Store { return s.store }

// Run operates the service until ctx is cancelled: the heartbeat, the drain
// scheduler, and (when enabled) the Prometheus endpoint. The first drain runs
// immediately; later runs follow the configured cadence. A failed drain is
// logged and retried at the next tick.
func (s *Service) Run(ctx context.Context) error {
	go s.heartbeat.Run(ctx)

	if s.Conf.MetricsEnabled && s.registry != nil {
		go s.serveMetrics(ctx)
	}

	s.Controlroom.Send(ctx, sidecar.StatusInfo, "sync service started")

	s.drain(ctx)
	ticker := time.NewTicker(s.Conf.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("sync service stopping", nil)
			return ctx.Err()
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Service) drain(ctx context.Context) {
	if err := s.Drainer.RunOnce(ctx); err != nil {
		s.Logger.Error("drain run failed", err, nil)
		s.Controlroom.Send(ctx, sidecar.StatusError, fmt.Sprintf("drain failed: %v", err))
	}
}

func (s *Service) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Conf.MetricsPort),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.Logger.Info("metrics endpoint listening", loggingpkg.LogFields{"port": s.Conf.MetricsPort})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.Logger.Error("metrics endpoint failed", err, nil)
	}
}

// Close releases the broker connection and the record store.
func (s *Service) Close() error {
	var firstErr error
	if err := s.broker.Close(); err != nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

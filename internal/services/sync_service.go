package services

import (
	"context"
	"time"

	"example.com/ticketing/services/events/internal/mapper"
	"example.com/ticketing/services/events/internal/messaging"
	"example.com/ticketing/services/events/internal/metrics"
	"example.com/ticketing/services/events/internal/models"
	"example.com/ticketing/services/events/internal/provider"
	"example.com/ticketing/services/events/internal/search"
	"example.com/ticketing/services/events/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FeedClient fetches the raw provider catalog.
type FeedClient interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// EventStore is the storage contract the reconciler needs for events.
type EventStore interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	BulkInsert(ctx context.Context, events []models.Event) error
	BulkUpdate(ctx context.Context, events []models.Event, columns []string) error
}

// ZoneStore is the storage contract the reconciler needs for zones.
type ZoneStore interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	BulkInsert(ctx context.Context, zones []models.Zone) error
	BulkUpdate(ctx context.Context, zones []models.Zone, columns []string) error
}

// SyncService runs the ingestion pipeline: fetch, parse, map, reconcile
// events, reconcile zones. One invocation is a single linear pass; the
// worker serializes invocations so only one sync is in flight at a time.
type SyncService struct {
	client        FeedClient
	eventStore    EventStore
	zoneStore     ZoneStore
	elasticClient *search.ElasticClient
	publisher     messaging.ReportPublisher
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewSyncService creates a new sync service. The Elasticsearch client and the
// report publisher may be nil; both are secondary outputs.
func NewSyncService(
	client FeedClient,
	eventStore EventStore,
	zoneStore ZoneStore,
	elasticClient *search.ElasticClient,
	publisher messaging.ReportPublisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *SyncService {
	return &SyncService{
		client:        client,
		eventStore:    eventStore,
		zoneStore:     zoneStore,
		elasticClient: elasticClient,
		publisher:     publisher,
		metrics:       metricsCollector,
		tracer:        tracer,
	}
}

// Run executes one full sync. Fetch, parse and storage failures are fatal to
// the invocation; malformed individual records are skipped and reported, not
// raised. Events are reconciled fully before zones so the zone rows written
// afterwards reference ids from the same batch, dangling or not.
func (s *SyncService) Run(ctx context.Context) (*models.SyncReport, error) {
	txn := s.tracer.StartTransaction("provider-sync")
	defer s.tracer.EndTransaction(txn)

	report := &models.SyncReport{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}

	fetchSpan := s.tracer.StartSpan("fetch-feed", txn)
	raw, err := s.client.Fetch(ctx)
	fetchSpan.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.IncrementCounter("sync.fetch_failures")
		return nil, err
	}

	baseEvents, err := provider.ParseFeed(raw)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	result := mapper.Map(baseEvents)
	s.recordSkips(result, report)

	eventsCreated, eventsUpdated, err := s.reconcileEvents(ctx, result.Events)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	report.EventsCreated = eventsCreated
	report.EventsUpdated = eventsUpdated

	zonesCreated, zonesUpdated, err := s.reconcileZones(ctx, result.Zones)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	report.ZonesCreated = zonesCreated
	report.ZonesUpdated = zonesUpdated

	report.FinishedAt = time.Now().UTC()

	s.metrics.IncrementCounter("sync.runs")
	s.metrics.IncrementCounterBy("sync.events.created", int64(eventsCreated))
	s.metrics.IncrementCounterBy("sync.events.updated", int64(eventsUpdated))
	s.metrics.IncrementCounterBy("sync.zones.created", int64(zonesCreated))
	s.metrics.IncrementCounterBy("sync.zones.updated", int64(zonesUpdated))

	s.indexEvents(ctx, result.Events)
	s.publishReport(ctx, report)

	log.Info().
		Str("run_id", report.RunID.String()).
		Int("events_created", report.EventsCreated).
		Int("events_updated", report.EventsUpdated).
		Int("events_skipped", report.EventsSkipped).
		Int("zones_created", report.ZonesCreated).
		Int("zones_updated", report.ZonesUpdated).
		Int("zones_skipped", report.ZonesSkipped).
		Msg("Sync run completed")

	return report, nil
}

// reconcileEvents partitions the mapped events by stored membership and
// applies an idempotent bulk insert plus a restricted bulk update.
func (s *SyncService) reconcileEvents(ctx context.Context, events map[int64]models.Event) (int, int, error) {
	ids := make([]int64, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}

	existing, err := s.eventStore.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to check existing events")
	}

	var toInsert, toUpdate []models.Event
	for id, event := range events {
		if _, ok := existing[id]; ok {
			toUpdate = append(toUpdate, event)
		} else {
			toInsert = append(toInsert, event)
		}
	}

	if err := s.eventStore.BulkInsert(ctx, toInsert); err != nil {
		return 0, 0, err
	}
	if err := s.eventStore.BulkUpdate(ctx, toUpdate, models.EventUpdatableColumns); err != nil {
		return 0, 0, err
	}

	return len(toInsert), len(toUpdate), nil
}

func (s *SyncService) reconcileZones(ctx context.Context, zones map[int64]models.Zone) (int, int, error) {
	ids := make([]int64, 0, len(zones))
	for id := range zones {
		ids = append(ids, id)
	}

	existing, err := s.zoneStore.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to check existing zones")
	}

	var toInsert, toUpdate []models.Zone
	for id, zone := range zones {
		if _, ok := existing[id]; ok {
			toUpdate = append(toUpdate, zone)
		} else {
			toInsert = append(toInsert, zone)
		}
	}

	if err := s.zoneStore.BulkInsert(ctx, toInsert); err != nil {
		return 0, 0, err
	}
	if err := s.zoneStore.BulkUpdate(ctx, toUpdate, models.ZoneUpdatableColumns); err != nil {
		return 0, 0, err
	}

	return len(toInsert), len(toUpdate), nil
}

// recordSkips logs every dropped record with its reason so malformed
// upstream data stays visible even though it never fails a run.
func (s *SyncService) recordSkips(result *mapper.Result, report *models.SyncReport) {
	for _, skip := range result.Skips {
		log.Warn().
			Str("kind", skip.Kind).
			Str("ref", skip.Ref).
			Str("reason", skip.Reason).
			Msg("Skipped malformed feed record")

		report.SkipReasons = append(report.SkipReasons, skip.String())
		switch skip.Kind {
		case "event":
			report.EventsSkipped++
		case "zone":
			report.ZonesSkipped++
		}
	}

	s.metrics.IncrementCounterBy("sync.events.skipped", int64(report.EventsSkipped))
	s.metrics.IncrementCounterBy("sync.zones.skipped", int64(report.ZonesSkipped))
}

func (s *SyncService) indexEvents(ctx context.Context, events map[int64]models.Event) {
	if s.elasticClient == nil || len(events) == 0 {
		return
	}

	batch := make([]models.Event, 0, len(events))
	for _, event := range events {
		batch = append(batch, event)
	}

	if err := s.elasticClient.IndexEvents(ctx, batch); err != nil {
		log.Warn().Err(err).Msg("Failed to index events in Elasticsearch")
	}
}

func (s *SyncService) publishReport(ctx context.Context, report *models.SyncReport) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishSyncReport(ctx, report); err != nil {
		log.Warn().Err(err).Str("run_id", report.RunID.String()).Msg("Failed to publish sync report")
	}
}

package services

import (
	"context"
	"testing"

	"example.com/ticketing/services/events/internal/metrics"
	"example.com/ticketing/services/events/internal/models"
	"example.com/ticketing/services/events/internal/tracing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock collaborators for testing

type MockFeedClient struct {
	mock.Mock
}

func (m *MockFeedClient) Fetch(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]struct{}), args.Error(1)
}

func (m *MockEventStore) BulkInsert(ctx context.Context, events []models.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockEventStore) BulkUpdate(ctx context.Context, events []models.Event, columns []string) error {
	args := m.Called(ctx, events, columns)
	return args.Error(0)
}

type MockZoneStore struct {
	mock.Mock
}

func (m *MockZoneStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]struct{}), args.Error(1)
}

func (m *MockZoneStore) BulkInsert(ctx context.Context, zones []models.Zone) error {
	args := m.Called(ctx, zones)
	return args.Error(0)
}

func (m *MockZoneStore) BulkUpdate(ctx context.Context, zones []models.Zone, columns []string) error {
	args := m.Called(ctx, zones, columns)
	return args.Error(0)
}

type MockReportPublisher struct {
	mock.Mock
}

func (m *MockReportPublisher) PublishSyncReport(ctx context.Context, report *models.SyncReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

const testFeed = `<eventList><output>
  <base_event base_event_id="1" sell_mode="online" title="Known event">
    <event event_start_date="2021-06-30T21:00:00" event_end_date="2021-06-30T22:00:00" event_id="1" sell_from="2020-07-01T00:00:00" sell_to="2021-06-30T20:00:00" sold_out="false">
      <zone zone_id="10" capacity="5" price="9.00" name="A" numbered="true"/>
    </event>
  </base_event>
  <base_event base_event_id="2" sell_mode="online" title="New event">
    <event event_start_date="2021-07-01T21:00:00" event_end_date="2021-07-01T22:00:00" event_id="2" sell_from="2020-07-01T00:00:00" sell_to="2021-06-30T20:00:00" sold_out="false">
      <zone zone_id="20" capacity="5" price="9.00" name="B" numbered="true"/>
    </event>
  </base_event>
</output></eventList>`

func newTestSyncService(client FeedClient, events EventStore, zones ZoneStore) *SyncService {
	return NewSyncService(client, events, zones, nil, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

func TestRunPartitionsInsertsAndUpdates(t *testing.T) {
	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)

	client.On("Fetch", mock.Anything).Return([]byte(testFeed), nil)

	// Event 1 and zone 10 are already stored; event 2 and zone 20 are new.
	eventStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{1: {}}, nil)
	eventStore.On("BulkInsert", mock.Anything, mock.MatchedBy(func(events []models.Event) bool {
		return len(events) == 1 && events[0].ID == 2
	})).Return(nil)
	eventStore.On("BulkUpdate", mock.Anything, mock.MatchedBy(func(events []models.Event) bool {
		return len(events) == 1 && events[0].ID == 1
	}), models.EventUpdatableColumns).Return(nil)

	zoneStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{10: {}}, nil)
	zoneStore.On("BulkInsert", mock.Anything, mock.MatchedBy(func(zones []models.Zone) bool {
		return len(zones) == 1 && zones[0].ID == 20
	})).Return(nil)
	zoneStore.On("BulkUpdate", mock.Anything, mock.MatchedBy(func(zones []models.Zone) bool {
		return len(zones) == 1 && zones[0].ID == 10
	}), models.ZoneUpdatableColumns).Return(nil)

	service := newTestSyncService(client, eventStore, zoneStore)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.EventsCreated)
	require.Equal(t, 1, report.EventsUpdated)
	require.Equal(t, 1, report.ZonesCreated)
	require.Equal(t, 1, report.ZonesUpdated)
	require.Zero(t, report.EventsSkipped)

	client.AssertExpectations(t)
	eventStore.AssertExpectations(t)
	zoneStore.AssertExpectations(t)
}

func TestRunReconcilesEventsBeforeZones(t *testing.T) {
	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)

	var order []string
	record := func(step string) func(mock.Arguments) {
		return func(mock.Arguments) { order = append(order, step) }
	}

	client.On("Fetch", mock.Anything).Return([]byte(testFeed), nil)
	eventStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	eventStore.On("BulkInsert", mock.Anything, mock.Anything).Run(record("events")).Return(nil)
	eventStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	zoneStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	zoneStore.On("BulkInsert", mock.Anything, mock.Anything).Run(record("zones")).Return(nil)
	zoneStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	service := newTestSyncService(client, eventStore, zoneStore)

	_, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"events", "zones"}, order)
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)

	client.On("Fetch", mock.Anything).Return(nil, context.DeadlineExceeded)

	service := newTestSyncService(client, eventStore, zoneStore)

	_, err := service.Run(context.Background())
	require.Error(t, err)

	// No partial write happens on a failed fetch.
	eventStore.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
	zoneStore.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestRunMalformedFeedIsFatal(t *testing.T) {
	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)

	client.On("Fetch", mock.Anything).Return([]byte("this is not XML"), nil)

	service := newTestSyncService(client, eventStore, zoneStore)

	_, err := service.Run(context.Background())
	require.Error(t, err)
	eventStore.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestRunReportsSkippedRecords(t *testing.T) {
	const feed = `<eventList><output>
	  <base_event base_event_id="1" sell_mode="online" title="Bad date">
	    <event event_start_date="nope" event_end_date="2021-06-30T22:00:00" event_id="1" sell_from="2020-07-01T00:00:00" sell_to="2021-06-30T20:00:00" sold_out="false">
	      <zone zone_id="10" capacity="5" price="9.00" name="A" numbered="true"/>
	    </event>
	  </base_event>
	</output></eventList>`

	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)

	client.On("Fetch", mock.Anything).Return([]byte(feed), nil)
	eventStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	eventStore.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	eventStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	zoneStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	zoneStore.On("BulkInsert", mock.Anything, mock.MatchedBy(func(zones []models.Zone) bool {
		// The skipped event's zone is still written.
		return len(zones) == 1 && zones[0].ID == 10
	})).Return(nil)
	zoneStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	service := newTestSyncService(client, eventStore, zoneStore)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.EventsSkipped)
	require.Zero(t, report.EventsCreated)
	require.Len(t, report.SkipReasons, 1)
}

func TestRunPublishesReport(t *testing.T) {
	client := new(MockFeedClient)
	eventStore := new(MockEventStore)
	zoneStore := new(MockZoneStore)
	publisher := new(MockReportPublisher)

	client.On("Fetch", mock.Anything).Return([]byte(testFeed), nil)
	eventStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	eventStore.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	eventStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	zoneStore.On("ExistingIDs", mock.Anything, mock.Anything).Return(map[int64]struct{}{}, nil)
	zoneStore.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	zoneStore.On("BulkUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	publisher.On("PublishSyncReport", mock.Anything, mock.MatchedBy(func(report *models.SyncReport) bool {
		return report.EventsCreated == 2 && report.ZonesCreated == 2
	})).Return(nil)

	service := NewSyncService(client, eventStore, zoneStore, nil, publisher,
		metrics.NewMetrics(), &tracing.NewRelicTracer{})

	_, err := service.Run(context.Background())
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

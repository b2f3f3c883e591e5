package services

import (
	"context"
	"time"

	"example.com/ticketing/services/events/internal/cache"
	"example.com/ticketing/services/events/internal/models"
	"example.com/ticketing/services/events/internal/repositories"
	"example.com/ticketing/services/events/internal/tracing"

	"github.com/rs/zerolog/log"
)

// EventView is the read-model projection of one event. The id is the stable
// UUID, never the provider's numeric id. Prices are nil when the event has
// no zones.
type EventView struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	StartDate string   `json:"start_date"`
	StartTime string   `json:"start_time"`
	EndDate   string   `json:"end_date"`
	EndTime   string   `json:"end_time"`
	MinPrice  *float64 `json:"min_price"`
	MaxPrice  *float64 `json:"max_price"`
}

// EventLister lists stored events fully contained in a window.
type EventLister interface {
	ListBetween(ctx context.Context, startsAt, endsAt time.Time) ([]models.Event, error)
}

// PriceAggregator computes per-event zone price bounds.
type PriceAggregator interface {
	PriceBoundsByEvent(ctx context.Context, eventIDs []int64) (map[int64]repositories.PriceBounds, error)
}

// QueryService serves the read path. It never writes; it may observe a
// partially applied sync batch, which is accepted.
type QueryService struct {
	events EventLister
	zones  PriceAggregator
	cache  *cache.RedisCache
	tracer tracing.Tracer
}

// NewQueryService creates a new query service. The cache may be nil.
func NewQueryService(events EventLister, zones PriceAggregator, redisCache *cache.RedisCache, tracer tracing.Tracer) *QueryService {
	return &QueryService{
		events: events,
		zones:  zones,
		cache:  redisCache,
		tracer: tracer,
	}
}

// List returns events whose start is at or after startsAt and whose end is
// at or before endsAt, each with its aggregated price bounds.
func (s *QueryService) List(ctx context.Context, startsAt, endsAt time.Time) ([]EventView, error) {
	txn := s.tracer.StartTransaction("list-events")
	defer s.tracer.EndTransaction(txn)

	key := cache.GetWindowCacheKey(startsAt, endsAt)
	if s.cache != nil {
		var cached []EventView
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	events, err := s.events.ListBetween(ctx, startsAt, endsAt)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	eventIDs := make([]int64, 0, len(events))
	for i := range events {
		eventIDs = append(eventIDs, events[i].ID)
	}

	bounds, err := s.zones.PriceBoundsByEvent(ctx, eventIDs)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	views := make([]EventView, 0, len(events))
	for i := range events {
		views = append(views, newEventView(&events[i], bounds))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, views); err != nil {
			log.Debug().Err(err).Msg("Failed to cache event views")
		}
	}

	return views, nil
}

func newEventView(event *models.Event, bounds map[int64]repositories.PriceBounds) EventView {
	view := EventView{
		ID:        event.UUID.String(),
		Title:     event.Title,
		StartDate: event.EventStartDatetime.Format("2006-01-02"),
		StartTime: event.EventStartDatetime.Format("15:04:05"),
		EndDate:   event.EventEndDatetime.Format("2006-01-02"),
		EndTime:   event.EventEndDatetime.Format("15:04:05"),
	}

	if b, ok := bounds[event.ID]; ok {
		minPrice, maxPrice := b.MinPrice, b.MaxPrice
		view.MinPrice = &minPrice
		view.MaxPrice = &maxPrice
	}

	return view
}

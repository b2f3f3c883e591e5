package repositories

import (
	"context"
	"time"

	"example.com/ticketing/services/events/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository provides access to event data
type EventRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventRepository {
	return &EventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ExistingIDs returns which of the given provider ids are already stored.
// The check goes against the write database to keep the check-then-write
// window as small as possible; replica lag would widen the race.
func (r *EventRepository) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return existingIDs(ctx, r.db, &models.Event{}, ids)
}

// BulkInsert inserts events, silently ignoring id collisions. A record that
// raced in between the existence check and this insert is left untouched.
func (r *EventRepository) BulkInsert(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(events, 500).Error
	return errors.Wrap(err, "failed to bulk insert events")
}

// BulkUpdate overwrites only the given columns on each event, by id.
func (r *EventRepository) BulkUpdate(ctx context.Context, events []models.Event, columns []string) error {
	if len(events) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			if err := tx.Model(&models.Event{}).
				Where("id = ?", event.ID).
				Select(columns).
				Updates(event).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "failed to bulk update events")
}

// ListBetween returns events whose whole duration falls inside the window:
// start at or after startsAt and end at or before endsAt.
func (r *EventRepository) ListBetween(ctx context.Context, startsAt, endsAt time.Time) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Where("event_start_datetime >= ? AND event_end_datetime <= ?", startsAt, endsAt).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return events, nil
}

// ZoneRepository provides access to zone data
type ZoneRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewZoneRepository creates a new zone repository
func NewZoneRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ZoneRepository {
	return &ZoneRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ExistingIDs returns which of the given provider zone ids are already stored.
func (r *ZoneRepository) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return existingIDs(ctx, r.db, &models.Zone{}, ids)
}

// BulkInsert inserts zones, silently ignoring id collisions.
func (r *ZoneRepository) BulkInsert(ctx context.Context, zones []models.Zone) error {
	if len(zones) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(zones, 500).Error
	return errors.Wrap(err, "failed to bulk insert zones")
}

// BulkUpdate overwrites only the given columns on each zone, by id.
func (r *ZoneRepository) BulkUpdate(ctx context.Context, zones []models.Zone, columns []string) error {
	if len(zones) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, zone := range zones {
			if err := tx.Model(&models.Zone{}).
				Where("id = ?", zone.ID).
				Select(columns).
				Updates(zone).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "failed to bulk update zones")
}

// PriceBounds holds the aggregated price range of one event's zones.
type PriceBounds struct {
	EventID  int64
	MinPrice float64
	MaxPrice float64
}

// PriceBoundsByEvent computes min/max zone price grouped per event. Events
// with no zones simply have no entry in the returned map.
func (r *ZoneRepository) PriceBoundsByEvent(ctx context.Context, eventIDs []int64) (map[int64]PriceBounds, error) {
	bounds := make(map[int64]PriceBounds)
	if len(eventIDs) == 0 {
		return bounds, nil
	}

	var rows []PriceBounds
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Zone{}).
		Select("event_id, MIN(price) AS min_price, MAX(price) AS max_price").
		Where("event_id IN ?", eventIDs).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate zone prices")
	}

	for _, row := range rows {
		bounds[row.EventID] = row
	}
	return bounds, nil
}

func existingIDs(ctx context.Context, db *gorm.DB, model interface{}, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	var found []int64
	err := db.WithContext(ctx).
		Model(model).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up existing ids")
	}

	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

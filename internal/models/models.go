package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Event is a sellable event from the external provider. The primary key is
// the provider-assigned event id, which is the reconciliation key; UUID is
// the externally exposed identifier, assigned once at first creation and
// never rewritten by the sync.
type Event struct {
	ID                 int64      `gorm:"primaryKey" json:"provider_id"`
	UUID               uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"id"`
	BaseEventID        int64      `gorm:"not null" json:"base_event_id"`
	OrganizerCompanyID *int64     `json:"organizer_company_id"`
	Title              string     `gorm:"not null" json:"title"`
	SellMode           string     `gorm:"not null" json:"sell_mode"`
	EventStartDatetime time.Time  `gorm:"not null;index" json:"event_start_datetime"`
	EventEndDatetime   time.Time  `gorm:"not null;index" json:"event_end_datetime"`
	SellFrom           time.Time  `gorm:"not null" json:"sell_from"`
	SellTo             time.Time  `gorm:"not null" json:"sell_to"`
	SoldOut            bool       `gorm:"not null" json:"sold_out"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Zones              []Zone     `gorm:"foreignKey:EventID" json:"-"`
}

// EventUpdatableColumns are the only columns the sync may overwrite on an
// existing event. UUID in particular is immutable after creation.
var EventUpdatableColumns = []string{
	"event_start_datetime", "event_end_datetime", "sell_from", "sell_to", "sell_mode",
}

// Zone is a priced, capacity-bounded section of an event. The primary key is
// the provider-assigned zone id. EventID references the provider event id;
// the feed does not guarantee the referenced event parsed successfully, so a
// zone row may dangle.
type Zone struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	EventID   int64     `gorm:"not null;index" json:"event_id"`
	Name      string    `gorm:"not null" json:"name"`
	Capacity  int       `gorm:"not null" json:"capacity"`
	Price     float64   `gorm:"not null" json:"price"`
	Numbered  bool      `gorm:"not null;default:true" json:"numbered"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ZoneUpdatableColumns are the only columns the sync may overwrite on an
// existing zone.
var ZoneUpdatableColumns = []string{"capacity", "price", "numbered", "event_id"}

// SyncReport summarizes a single sync run. Published to the message bus and
// logged after every run.
type SyncReport struct {
	RunID         uuid.UUID `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	EventsCreated int       `json:"events_created"`
	EventsUpdated int       `json:"events_updated"`
	EventsSkipped int       `json:"events_skipped"`
	ZonesCreated  int       `json:"zones_created"`
	ZonesUpdated  int       `json:"zones_updated"`
	ZonesSkipped  int       `json:"zones_skipped"`
	SkipReasons   []string  `json:"skip_reasons,omitempty"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Event{},
		&Zone{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}

package mapper

import (
	"fmt"
	"strconv"
	"time"

	"example.com/ticketing/services/events/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// mxj prefixes XML attribute keys with "-" in the generic node tree.
	attrPrefix = "-"

	// Feed timestamps carry no timezone and no fractional seconds.
	feedTimeLayout = "2006-01-02T15:04:05"

	sellModeOnline = "online"
)

// Skip records one discarded record together with the reason it was dropped,
// so partial failures stay observable instead of being silently swallowed.
type Skip struct {
	Kind   string // "event" or "zone"
	Ref    string // provider id or positional reference of the bad record
	Reason string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s %s: %s", s.Kind, s.Ref, s.Reason)
}

// Result is the mapper output: fully populated records keyed by provider id,
// plus the per-record skips. Only online-sell-mode records appear; duplicate
// provider ids resolve to the later document-order occurrence.
type Result struct {
	Events map[int64]models.Event
	Zones  map[int64]models.Zone
	Skips  []Skip
}

// Map walks the generic base_event nodes and produces typed Event and Zone
// records. A malformed event or zone drops only that record; the rest of the
// batch is unaffected. Zones are kept even when their event record fails,
// matching the provider contract that does not enforce referential
// existence.
func Map(baseEvents []interface{}) *Result {
	res := &Result{
		Events: make(map[int64]models.Event),
		Zones:  make(map[int64]models.Zone),
	}

	for i, node := range baseEvents {
		base, ok := node.(map[string]interface{})
		if !ok {
			res.skip("event", fmt.Sprintf("#%d", i), "base_event is not an object")
			continue
		}

		// Only online events are ingested; everything else is dropped by
		// design, without a skip record.
		if sellMode, _ := attr(base, "sell_mode"); sellMode != sellModeOnline {
			continue
		}

		event, ok := base["event"].(map[string]interface{})
		if !ok {
			res.skip("event", fmt.Sprintf("#%d", i), "missing or malformed nested event node")
			continue
		}

		eventID, err := attrInt(event, "event_id")
		if err != nil {
			// Without a usable event id neither the event nor its zones can
			// be keyed.
			res.skip("event", fmt.Sprintf("#%d", i), err.Error())
			continue
		}

		res.mapZones(event, eventID)

		rec, err := mapEvent(base, event, eventID)
		if err != nil {
			res.skip("event", strconv.FormatInt(eventID, 10), err.Error())
			continue
		}
		res.Events[eventID] = rec
	}

	return res
}

// mapZones normalizes the one-or-many zone field and maps each entry
// individually, so one malformed zone never takes down its siblings.
func (r *Result) mapZones(event map[string]interface{}, eventID int64) {
	for _, node := range asList(event["zone"]) {
		zone, ok := node.(map[string]interface{})
		if !ok {
			r.skip("zone", fmt.Sprintf("event %d", eventID), "zone is not an object")
			continue
		}

		rec, err := mapZone(zone, eventID)
		if err != nil {
			r.skip("zone", fmt.Sprintf("event %d", eventID), err.Error())
			continue
		}
		r.Zones[rec.ID] = rec
	}
}

func mapEvent(base, event map[string]interface{}, eventID int64) (models.Event, error) {
	baseEventID, err := attrInt(base, "base_event_id")
	if err != nil {
		return models.Event{}, err
	}

	title, ok := attr(base, "title")
	if !ok {
		return models.Event{}, errors.New("missing attribute title")
	}
	sellMode, _ := attr(base, "sell_mode")

	var organizerID *int64
	if _, ok := attr(base, "organizer_company_id"); ok {
		id, err := attrInt(base, "organizer_company_id")
		if err != nil {
			return models.Event{}, err
		}
		organizerID = &id
	}

	startsAt, err := attrTime(event, "event_start_date")
	if err != nil {
		return models.Event{}, err
	}
	endsAt, err := attrTime(event, "event_end_date")
	if err != nil {
		return models.Event{}, err
	}
	sellFrom, err := attrTime(event, "sell_from")
	if err != nil {
		return models.Event{}, err
	}
	sellTo, err := attrTime(event, "sell_to")
	if err != nil {
		return models.Event{}, err
	}

	return models.Event{
		ID:                 eventID,
		UUID:               uuid.New(),
		BaseEventID:        baseEventID,
		OrganizerCompanyID: organizerID,
		Title:              title,
		SellMode:           sellMode,
		EventStartDatetime: startsAt,
		EventEndDatetime:   endsAt,
		SellFrom:           sellFrom,
		SellTo:             sellTo,
		SoldOut:            attrBool(event, "sold_out"),
	}, nil
}

func mapZone(zone map[string]interface{}, eventID int64) (models.Zone, error) {
	zoneID, err := attrInt(zone, "zone_id")
	if err != nil {
		return models.Zone{}, err
	}
	capacity, err := attrInt(zone, "capacity")
	if err != nil {
		return models.Zone{}, err
	}
	price, err := attrFloat(zone, "price")
	if err != nil {
		return models.Zone{}, err
	}
	name, ok := attr(zone, "name")
	if !ok {
		return models.Zone{}, errors.New("missing attribute name")
	}

	return models.Zone{
		ID:       zoneID,
		EventID:  eventID,
		Name:     name,
		Capacity: int(capacity),
		Price:    price,
		Numbered: attrBool(zone, "numbered"),
	}, nil
}

func (r *Result) skip(kind, ref, reason string) {
	r.Skips = append(r.Skips, Skip{Kind: kind, Ref: ref, Reason: reason})
}

// asList normalizes the variable-cardinality fields of the feed: a repeated
// element arrives as []interface{}, a lone one as the bare value.
func asList(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	default:
		return []interface{}{t}
	}
}

func attr(node map[string]interface{}, name string) (string, bool) {
	v, ok := node[attrPrefix+name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func attrInt(node map[string]interface{}, name string) (int64, error) {
	s, ok := attr(node, name)
	if !ok {
		return 0, errors.Errorf("missing attribute %s", name)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("attribute %s is not an integer: %q", name, s)
	}
	return i, nil
}

func attrFloat(node map[string]interface{}, name string) (float64, error) {
	s, ok := attr(node, name)
	if !ok {
		return 0, errors.Errorf("missing attribute %s", name)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("attribute %s is not a number: %q", name, s)
	}
	return f, nil
}

// attrBool is true only for the literal "true". Any other value, including
// an absent attribute, is false.
func attrBool(node map[string]interface{}, name string) bool {
	s, _ := attr(node, name)
	return s == "true"
}

func attrTime(node map[string]interface{}, name string) (time.Time, error) {
	s, ok := attr(node, name)
	if !ok {
		return time.Time{}, errors.Errorf("missing attribute %s", name)
	}
	t, err := time.Parse(feedTimeLayout, s)
	if err != nil {
		return time.Time{}, errors.Errorf("attribute %s is not a timestamp: %q", name, s)
	}
	return t, nil
}

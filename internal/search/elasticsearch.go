package search

import (
	"bytes"
	"context"
	"encoding/json"

	"example.com/ticketing/services/events/config"
	"example.com/ticketing/services/events/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient maintains a secondary search projection of synced events.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexEvents indexes the batch of synced events, one document per event,
// keyed by the stable UUID so re-syncs overwrite in place.
func (c *ElasticClient) IndexEvents(ctx context.Context, events []models.Event) error {
	indexName := config.FormatIndex(c.config, c.config.Index)

	for i := range events {
		event := &events[i]

		doc := map[string]interface{}{
			"id":          event.UUID.String(),
			"provider_id": event.ID,
			"title":       event.Title,
			"sell_mode":   event.SellMode,
			"starts_at":   event.EventStartDatetime,
			"ends_at":     event.EventEndDatetime,
			"sell_from":   event.SellFrom,
			"sell_to":     event.SellTo,
			"sold_out":    event.SoldOut,
		}

		docJSON, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "failed to marshal event document")
		}

		req := esapi.IndexRequest{
			Index:      indexName,
			DocumentID: event.UUID.String(),
			Body:       bytes.NewReader(docJSON),
		}

		res, err := req.Do(ctx, c.client)
		if err != nil {
			return errors.Wrap(err, "failed to execute Elasticsearch index request")
		}

		if res.IsError() {
			var e map[string]interface{}
			if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
				res.Body.Close()
				return errors.Wrap(err, "failed to parse Elasticsearch error response")
			}
			res.Body.Close()
			return errors.Errorf("Elasticsearch index error: %v", e)
		}
		res.Body.Close()
	}

	log.Info().Int("events", len(events)).Str("index", indexName).Msg("Events indexed")
	return nil
}

package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/ticketing/services/events/config"
	"example.com/ticketing/services/events/internal/models"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
)

// ReportPublisher publishes sync run summaries for downstream consumers.
type ReportPublisher interface {
	PublishSyncReport(ctx context.Context, report *models.SyncReport) error
	Close() error
}

type serviceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewServiceBusPublisher creates a publisher backed by Azure Service Bus.
func NewServiceBusPublisher(cfg config.AzureConfig) (ReportPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &serviceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// PublishSyncReport sends one report message to the configured queue.
func (p *serviceBusPublisher) PublishSyncReport(ctx context.Context, report *models.SyncReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sync report")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": "events_service",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return p.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus client
func (p *serviceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	if p.client != nil {
		return p.client.Close(context.Background())
	}

	return nil
}

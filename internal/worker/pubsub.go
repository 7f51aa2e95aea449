package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler handles Pub/Sub messages for the worker. Ingest pipelines
// publish a message when they finish writing a new archive so the reload
// happens immediately instead of waiting for the next scheduled pass.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	reloadJob        *ReloadJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	ReloadJob        *ReloadJob
	Logger           zerolog.Logger
}

// ReloadMessage represents a dataset reload job message.
type ReloadMessage struct {
	JobType  string `json:"job_type"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
	All      bool   `json:"all,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings. Reloads decompress whole archives, so keep
	// the outstanding count low and the extension generous.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		reloadJob:        cfg.ReloadJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var reloadMsg ReloadMessage
	if err := json.Unmarshal(msg.Data, &reloadMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	var err error
	switch reloadMsg.JobType {
	case "dataset_reload":
		err = h.handleDatasetReload(ctx, reloadMsg)
	case "health_check":
		err = h.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", reloadMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", reloadMsg.JobType).
		Dur("duration", duration).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleDatasetReload(ctx context.Context, msg ReloadMessage) error {
	if !msg.All && msg.Category != "" && msg.Source != "" {
		h.logger.Info().
			Str("category", msg.Category).
			Str("source", msg.Source).
			Msg("starting targeted dataset reload")
		return h.reloadJob.ReloadOne(ctx, msg.Category, msg.Source)
	}

	h.logger.Info().Msg("starting full dataset reload")
	result := h.reloadJob.Run(ctx)

	// Consider it successful if more than half reloaded.
	if result.Failed > result.Succeeded {
		return fmt.Errorf("too many reload failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (h *PubSubHandler) handleHealthCheck(_ context.Context) error {
	h.logger.Debug().Msg("running health check")

	loaded := 0
	for _, s := range h.reloadJob.registry.Status() {
		if s.Loaded {
			loaded++
		}
	}
	if loaded == 0 {
		return fmt.Errorf("health check failed: no datasets loaded")
	}

	h.logger.Debug().Int("loaded", loaded).Msg("health check passed")
	return nil
}

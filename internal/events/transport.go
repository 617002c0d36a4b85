package events

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
)

const channelBuffer = 256

// Transport is the publisher/subscriber pair course events travel over
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string
	Kind       string
}

// NewTransport uses Kafka when brokers are configured and an in-process channel otherwise
func NewTransport(cfg config.EventsConfig, logger *slog.Logger) (*Transport, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.KafkaBrokers) == 0 {
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: channelBuffer}, wmLogger)
		return &Transport{Publisher: pubSub, Subscriber: pubSub, Topic: cfg.Topic, Kind: "gochannel"}, nil
	}

	// Keying by course keeps every course's events on one partition, in order.
	marshaler := kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(metadataCourseID), nil
	})

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: marshaler,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	// No consumer group: every instance receives every event so it can fan out to its own watchers.
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.KafkaBrokers,
		Unmarshaler:           marshaler,
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	return &Transport{Publisher: publisher, Subscriber: subscriber, Topic: cfg.Topic, Kind: "kafka"}, nil
}

func (t *Transport) Close() error {
	var firstErr error
	if err := t.Subscriber.Close(); err != nil {
		firstErr = err
	}
	// gochannel shares one value for both sides
	if any(t.Publisher) != any(t.Subscriber) {
		if err := t.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

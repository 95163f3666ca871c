package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"scholarconnect-ws/internal/chat"

	"github.com/segmentio/kafka-go"
)

type KafkaProducer struct {
	Writer *kafka.Writer
}

func NewKafkaProducer(broker string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Balancer: &kafka.LeastBytes{},
		// Optimize for low latency
		BatchSize:    1,
		BatchTimeout: 0 * time.Millisecond,
		RequiredAcks: 1,
		Async:        false,
	}
	return &KafkaProducer{Writer: writer}
}

// Publish routes the event to its topic by payload type.
func (k *KafkaProducer) Publish(ctx context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := k.topicForEvent(event)

	msg := kafka.Message{
		Topic: topic,
		Value: data,
	}

	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("Failed to publish event to Kafka topic %s: %v", topic, err)
		return err
	}
	return nil
}

func (k *KafkaProducer) topicForEvent(event any) string {
	switch event.(type) {
	case chat.MessageEvent:
		return "chat-messages"
	case chat.TypingEvent:
		return "typing-indicators"
	case chat.PresenceEvent:
		return "presence-events"
	default:
		return "chat-messages" // fallback to default topic
	}
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"scholarconnect-ws/internal/chat"

	"github.com/segmentio/kafka-go"
)

// BackendEventHandler receives room events originated outside this
// process (the REST backend writes a message, a moderation service
// injects a notice) so they still reach live socket clients.
type BackendEventHandler interface {
	HandleBackendMessage(ev chat.MessageEvent)
}

type KafkaConsumer struct {
	readers []*kafka.Reader
	handler BackendEventHandler
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string, handler BackendEventHandler) *KafkaConsumer {
	var readers []*kafka.Reader

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 100 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond,
		})
		readers = append(readers, reader)
	}

	return &KafkaConsumer{
		readers: readers,
		handler: handler,
	}
}

func (k *KafkaConsumer) Start(ctx context.Context) error {
	for i := range k.readers {
		go func(readerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic in Kafka consumer goroutine %d: %v", readerIndex, r)
				}
			}()

			reader := k.readers[readerIndex]
			defer reader.Close()

			for {
				select {
				case <-ctx.Done():
					log.Printf("Kafka consumer stopping...")
					return
				default:
					m, err := reader.ReadMessage(ctx)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Error reading Kafka message: %v", err)
						continue
					}

					if k.handler != nil {
						k.handleMessage(m.Topic, m.Value)
					}
				}
			}
		}(i)
	}

	return nil
}

func (k *KafkaConsumer) handleMessage(topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessage for topic %s: %v", topic, r)
		}
	}()

	switch topic {
	case "chat-events":
		var ev chat.MessageEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			log.Printf("Error unmarshaling backend message event: %v", err)
			return
		}
		k.handler.HandleBackendMessage(ev)

	default:
		log.Printf("Unknown topic: %s", topic)
	}
}

func (k *KafkaConsumer) Close() error {
	for i := range k.readers {
		if err := k.readers[i].Close(); err != nil {
			log.Printf("Error closing Kafka reader: %v", err)
		}
	}
	return nil
}

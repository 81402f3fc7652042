package reporting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaAllSubsPublisher wraps another Publisher and additionally
// forwards each ALLSUBS_TLM segment, JSON-encoded, to an external
// networking bridge topic. It never consumes from Kafka — the bus has no
// inbound Kafka path.
type KafkaAllSubsPublisher struct {
	Publisher
	writer *kafka.Writer
}

// NewKafkaAllSubsPublisher creates a KafkaAllSubsPublisher delegating
// HK/Stats/OneSub to next and publishing ALLSUBS_TLM segments to topic
// on brokers.
func NewKafkaAllSubsPublisher(brokers []string, topic string, next Publisher) *KafkaAllSubsPublisher {
	return &KafkaAllSubsPublisher{
		Publisher: next,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishAllSubs overrides the embedded Publisher's implementation to
// additionally ship the segment to Kafka. The write is synchronous and
// bounded by a 2-second timeout; a marshal or write failure is
// discarded without being reported.
func (k *KafkaAllSubsPublisher) PublishAllSubs(seg AllSubsSegment) {
	k.Publisher.PublishAllSubs(seg)

	payload, err := json.Marshal(seg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = k.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

// Close releases the underlying Kafka writer's connections.
func (k *KafkaAllSubsPublisher) Close() error {
	return k.writer.Close()
}

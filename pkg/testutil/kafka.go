package testutil

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"

	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

// KafkaContainer is a single-node Kafka broker with the topics the test asked for.
type KafkaContainer struct {
	Container *kafka.KafkaContainer
	Brokers   []string
	Topics    []string
}

// NewKafkaContainer starts a broker and creates each topic with one
// partition. The caller should defer kc.Cleanup(t).
func NewKafkaContainer(ctx context.Context, t *testing.T, topics ...string) *KafkaContainer {
	t.Helper()

	kafkaContainer, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.6.1",
		kafka.WithClusterID("riskengine-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	kc := &KafkaContainer{Container: kafkaContainer, Brokers: brokers}
	if len(topics) > 0 {
		kc.CreateTopics(t, topics...)
	}
	return kc
}

// CreateTopics creates topics on the controller broker. Existing topics are
// left untouched.
func (kc *KafkaContainer) CreateTopics(t *testing.T, topics ...string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", kc.Brokers[0])
	if err != nil {
		t.Fatalf("failed to dial kafka: %v", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		t.Fatalf("failed to find kafka controller: %v", err)
	}
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		t.Fatalf("failed to dial kafka controller: %v", err)
	}
	defer ctrl.Close()

	configs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}
	}
	if err := ctrl.CreateTopics(configs...); err != nil {
		t.Fatalf("failed to create topics %v: %v", topics, err)
	}
	kc.Topics = append(kc.Topics, topics...)
}

// Config returns a client config pointed at the container for consumerGroup.
func (kc *KafkaContainer) Config(consumerGroup string) pkgkafka.Config {
	return pkgkafka.Config{Brokers: kc.Brokers, ConsumerGroup: consumerGroup}
}

// Cleanup terminates the container.
func (kc *KafkaContainer) Cleanup(t *testing.T) {
	t.Helper()

	if kc.Container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := kc.Container.Terminate(ctx); err != nil {
			t.Logf("warning: failed to terminate kafka container: %v", err)
		}
	}
}

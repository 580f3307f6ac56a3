package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	queueSize    = 256
	writeTimeout = 10 * time.Second
)

var (
	ErrQueueFull      = errors.New("kafka producer queue is full")
	ErrProducerClosed = errors.New("kafka producer is closed")
)

type Producer interface {
	SendMessage(ctx context.Context, key string, message interface{}) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer hands messages to a background writer so a slow or
// unreachable broker never holds up the caller.
type kafkaProducer struct {
	writer messageWriter
	topic  string
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newKafkaProducer(writer messageWriter, topic string, size int) *kafkaProducer {
	p := &kafkaProducer{
		writer: writer,
		topic:  topic,
		queue:  make(chan kafka.Message, size),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *kafkaProducer) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"topic": p.topic,
				"key":   string(msg.Key),
			}).Warn("failed to publish message")
			continue
		}
		logrus.Debugf("Message successfully sent to topic: %s", p.topic)
	}
}

// NewProducer returns a producer for topic. With no brokers, or when the
// first broker cannot be reached, it falls back to a producer that only logs.
func NewProducer(brokers []string, topic string) Producer {
	if len(brokers) == 0 {
		logrus.Info("No Kafka brokers configured, inpaint events go to the log")
		return &mockProducer{topic: topic}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logrus.Infof("Kafka producer configured for brokers: %v", brokers)

	// Проверяем подключение и создаем топик
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logrus.Warnf("Kafka connection failed: %v", err)
		logrus.Warn("Using mock producer instead")
		return &mockProducer{topic: topic}
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.Infof("Could not create topic (might already exist): %v", err)
	} else {
		logrus.Infof("Created topic: %s", topic)
	}

	return newKafkaProducer(writer, topic, queueSize)
}

// SendMessage queues the message and returns at once. When the queue is
// full the message is dropped with ErrQueueFull.
func (p *kafkaProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: messageBytes,
		Time:  time.Now(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close flushes queued messages, then closes the writer.
func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// Mock producer для работы без Kafka
type mockProducer struct {
	topic string
}

func (m *mockProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"topic": m.topic,
		"key":   key,
	}).Infof("MOCK: %s", messageBytes)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}

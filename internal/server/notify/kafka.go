package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/task"
)

const (
	EventDroneTasked = "drone_tasked"
	EventTaskDeleted = "task_deleted"
)

// Event is the JSON document published for every notification.
type Event struct {
	Event   string       `json:"event"`
	DroneID task.DroneID `json:"drone_id"`
	TaskID  task.ID      `json:"task_id"`
	Time    time.Time    `json:"time"`
}

// MessageWriter is the part of *kafka.Writer used by the notifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer  MessageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaWriter returns an asynchronous writer: WriteMessages does not wait for the brokers,
// delivery errors are reported through the completion callback.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("failed to publish task events", "count", len(messages), "error", err)
			}
		},
	}
}

func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{
		writer:  w,
		timeout: config.NotifyTimeout,
		now:     time.Now,
	}
}

func (k *Kafka) DroneTasked(droneID task.DroneID, taskID task.ID) {
	k.publish(EventDroneTasked, droneID, taskID)
}

func (k *Kafka) TaskDeleted(droneID task.DroneID, taskID task.ID) {
	k.publish(EventTaskDeleted, droneID, taskID)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func (k *Kafka) publish(event string, droneID task.DroneID, taskID task.ID) {
	value, err := serializer.JSON.Marshal(Event{
		Event:   event,
		DroneID: droneID,
		TaskID:  taskID,
		Time:    k.now().UTC(),
	})
	if err != nil {
		slog.Warn("failed to encode task event", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	// keyed by drone so that events of one drone keep their order
	msg := kafka.Message{Key: []byte(droneID), Value: value}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("failed to publish task event", "event", event, "drone", droneID, "task", taskID, "error", err)
	}
}

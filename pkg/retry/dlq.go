package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrDLQPublishFailed means the message was neither processed nor dead-lettered
var ErrDLQPublishFailed = errors.New("failed to publish to DLQ")

// DLQMessage is a message that exhausted its retries
type DLQMessage struct {
	ID             string            `json:"id"`
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Payload        json.RawMessage   `json:"payload"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	MovedToDLQAt   time.Time         `json:"moved_to_dlq_at"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// JSONPublisher is satisfied by *kafka.Producer
type JSONPublisher interface {
	ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
}

// DLQPublisher publishes dead letters
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
}

// KafkaDLQPublisher writes dead letters to a fixed topic
type KafkaDLQPublisher struct {
	producer JSONPublisher
	topic    string
	source   string
}

// NewKafkaDLQPublisher creates a publisher for topic
func NewKafkaDLQPublisher(producer JSONPublisher, topic, source string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{producer: producer, topic: topic, source: source}
}

// PublishToDLQ stamps and publishes msg
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}
	msg.MovedToDLQAt = time.Now().UTC()
	msg.Source = p.source

	headers := map[string]string{
		"original_topic": msg.OriginalTopic,
		"error":          msg.Error,
		"attempts":       strconv.Itoa(msg.Attempts),
		"source":         msg.Source,
	}
	return p.producer.ProduceJSON(ctx, p.topic, msg.OriginalKey, msg, headers)
}

// NoOpDLQPublisher drops dead letters
type NoOpDLQPublisher struct{}

// PublishToDLQ does nothing
func (NoOpDLQPublisher) PublishToDLQ(context.Context, *DLQMessage) error { return nil }

// MessageContext identifies the message being processed
type MessageContext struct {
	ID       string
	Topic    string
	Key      string
	Payload  json.RawMessage
	Metadata map[string]string
}

// DLQHandler retries an operation and dead-letters it on final failure
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	source    string
	onDLQ     func(msg *DLQMessage)
}

// NewDLQHandler creates a handler. onDLQ may be nil.
func NewDLQHandler(cfg *Config, publisher DLQPublisher, source string, onDLQ func(msg *DLQMessage)) *DLQHandler {
	if publisher == nil {
		publisher = NoOpDLQPublisher{}
	}
	return &DLQHandler{
		retrier:   New(cfg),
		publisher: publisher,
		source:    source,
		onDLQ:     onDLQ,
	}
}

// Process runs op with retries. When retries are exhausted or op returns a
// permanent error, the message is dead-lettered and the failure returned.
// If the dead letter cannot be published the error wraps ErrDLQPublishFailed
// and the caller must not acknowledge the message.
func (h *DLQHandler) Process(ctx context.Context, msgCtx *MessageContext, op Operation) error {
	started := time.Now().UTC()
	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}
	if result.Err == ErrContextCanceled {
		return result.Err
	}

	errMsg := result.Err.Error()
	if result.LastError != nil {
		errMsg = result.LastError.Error()
	}

	dlqMsg := &DLQMessage{
		ID:             msgCtx.ID,
		OriginalTopic:  msgCtx.Topic,
		OriginalKey:    msgCtx.Key,
		Payload:        msgCtx.Payload,
		Error:          errMsg,
		Attempts:       result.Attempts,
		FirstAttemptAt: started,
		Source:         h.source,
		Metadata:       msgCtx.Metadata,
	}
	if err := h.publisher.PublishToDLQ(ctx, dlqMsg); err != nil {
		return fmt.Errorf("%w: %w (original error: %s)", ErrDLQPublishFailed, err, errMsg)
	}
	if h.onDLQ != nil {
		h.onDLQ(dlqMsg)
	}
	return result.Err
}

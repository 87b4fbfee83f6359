package kafka

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is an outgoing record
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Record is a consumed record
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time

	raw *kgo.Record
}

func (m *Message) toKgo() *kgo.Record {
	rec := &kgo.Record{
		Topic: m.Topic,
		Key:   m.Key,
		Value: m.Value,
	}
	for k, v := range m.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

func fromKgo(r *kgo.Record) *Record {
	rec := &Record{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
		raw:       r,
	}
	if len(r.Headers) > 0 {
		rec.Headers = make(map[string]string, len(r.Headers))
		for _, h := range r.Headers {
			rec.Headers[h.Key] = string(h.Value)
		}
	}
	return rec
}

// Header returns a header value or ""
func (r *Record) Header(key string) string {
	return r.Headers[key]
}

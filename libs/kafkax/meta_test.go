package kafkax

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMetaFromHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic: "booking.appointment.booked.v1",
		Key:   []byte("booking-123"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-1")},
			{Key: "event_type", Value: []byte("booking.appointment.booked.v1")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" {
		t.Fatalf("event id = %q, want evt-1", meta.EventID)
	}
	if meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("event type = %q", meta.EventType)
	}
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{
		Topic: "booking.appointment.cancelled.v1",
		Key:   []byte("booking-456"),
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "booking-456" {
		t.Fatalf("event id = %q, want key fallback", meta.EventID)
	}
	if meta.EventType != "booking.appointment.cancelled.v1" {
		t.Fatalf("event type = %q, want topic fallback", meta.EventType)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("brokers = %v, want %v", got, want)
	}
	if got := SplitBrokers(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

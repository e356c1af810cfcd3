package outbox

// Event types double as Kafka topic names, one topic per event type.
const (
	EventBooked      = "booking.appointment.booked.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"
)

const AggregateBooking = "booking"

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

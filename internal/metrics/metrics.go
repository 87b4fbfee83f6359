package metrics

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

const meterName = "hotel-booking"

var (
	// Confirmations counts reconciler outcomes, labelled by outcome
	Confirmations *telemetry.Counter
	// CheckoutSessions counts provider sessions created
	CheckoutSessions *telemetry.Counter

	BookingsCancelled   *telemetry.Counter
	BookingsCompleted   *telemetry.Counter
	BookingsRescheduled *telemetry.Counter

	RefundsRequested *telemetry.Counter
	RefundsProcessed *telemetry.Counter

	SessionsSwept       *telemetry.Counter
	RateLimitRejections *telemetry.Counter

	initOnce sync.Once
)

// Confirmation outcomes
const (
	OutcomeCreated    = "created"
	OutcomeReplayed   = "replayed"
	OutcomeConflict   = "conflict"
	OutcomeIncomplete = "payment_incomplete"
	OutcomeForbidden  = "forbidden"
	OutcomeFailed     = "failed"
	OutcomeSucceeded  = "succeeded"
	OutcomeDeadLetter = "dead_letter"
)

// Init registers every counter on the global meter provider.
// Counters are nil-safe, so calling Init is optional in tests.
func Init() {
	initOnce.Do(func() {
		Confirmations = telemetry.NewCounter(meterName, "booking_confirmations_total", "Payment confirmations by outcome")
		CheckoutSessions = telemetry.NewCounter(meterName, "booking_checkout_sessions_total", "Checkout sessions created")
		BookingsCancelled = telemetry.NewCounter(meterName, "booking_cancellations_total", "Bookings cancelled")
		BookingsCompleted = telemetry.NewCounter(meterName, "booking_completions_total", "Bookings completed")
		BookingsRescheduled = telemetry.NewCounter(meterName, "booking_reschedules_total", "Booking date changes")
		RefundsRequested = telemetry.NewCounter(meterName, "booking_refunds_requested_total", "Refunds requested after a lost availability race")
		RefundsProcessed = telemetry.NewCounter(meterName, "booking_refunds_processed_total", "Refunds processed by outcome")
		SessionsSwept = telemetry.NewCounter(meterName, "booking_sessions_swept_total", "Paid sessions confirmed by the sweeper")
		RateLimitRejections = telemetry.NewCounter(meterName, "http_rate_limit_rejections_total", "Requests rejected by the rate limiter")
	})
}

// Outcome is the attribute used by outcome-labelled counters
func Outcome(v string) attribute.KeyValue {
	return attribute.String("outcome", v)
}

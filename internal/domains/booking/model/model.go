package model

import (
	"time"

	"agenda/shared/model"
	"agenda/shared/timezone"
)

const (
	TableName  = "bookings"
	EntityName = "booking"

	FieldID              = "id"
	FieldOwnerID         = "owner_id"
	FieldOwnerEmail      = "owner_email"
	FieldServiceType     = "service_type"
	FieldStartTime       = "start_time"
	FieldEndTime         = "end_time"
	FieldDurationMinutes = "duration_minutes"
	FieldPrice           = "price"
	FieldStatus          = "status"
	FieldPaymentStatus   = "payment_status"
	FieldHoldExpiresAt   = "hold_expires_at"
	FieldExternalEventID = "external_event_id"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// ActiveStatuses are the statuses that occupy a slot. The partial unique
// index on (service_type, start_time) covers exactly these.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// Booking is a concrete reservation of a slot. A pending row with
// hold_expires_at set is a temporary payment hold; it stops occupying the
// slot the moment the expiry passes, without any write.
type Booking struct {
	ID              string     `db:"id"`
	OwnerID         string     `db:"owner_id"`
	OwnerEmail      string     `db:"owner_email"`
	ServiceType     string     `db:"service_type"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         time.Time  `db:"end_time"`
	DurationMinutes int        `db:"duration_minutes"`
	Price           float64    `db:"price"`
	Status          string     `db:"status"`
	PaymentStatus   string     `db:"payment_status"`
	HoldExpiresAt   *time.Time `db:"hold_expires_at"`
	ExternalEventID *string    `db:"external_event_id"`
	model.Metadata
}

// Occupies reports whether the booking blocks its slot at the given instant.
// Confirmed bookings always occupy; pending ones only while the hold lives.
func (b Booking) Occupies(now time.Time) bool {
	switch b.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return b.HoldExpiresAt == nil || b.HoldExpiresAt.After(now)
	default:
		return false
	}
}

// OverlapsWindow reports whether the booking's interval intersects
// [start, end).
func (b Booking) OverlapsWindow(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// StartsAt reports whether the booking starts at exactly the given instant,
// compared at minute precision in the business timezone.
func (b Booking) StartsAt(start time.Time) bool {
	return timezone.ToAppTime(b.StartTime).Truncate(time.Minute).Equal(timezone.ToAppTime(start).Truncate(time.Minute))
}

package dto

import (
	"time"

	"github.com/google/uuid"

	"agenda/internal/domains/booking/model"
	"agenda/shared"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	gDto "agenda/shared/dto"
	gModel "agenda/shared/model"
	"agenda/shared/timezone"
)

type AcquireHoldRequest struct {
	ServiceType string `json:"service_type" validate:"required,max=100"`
	Date        string `json:"date"         validate:"required"`
	Time        string `json:"time"         validate:"required,clock"`
}

type HoldResponse struct {
	BookingID       string  `json:"booking_id"`
	ServiceType     string  `json:"service_type"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	ExpiresAt       string  `json:"expires_at"`
}

func (r *HoldResponse) FromModel(booking model.Booking) {
	r.BookingID = booking.ID
	r.ServiceType = booking.ServiceType
	r.Date = timezone.Format(booking.StartTime, constant.SlotDateFormat)
	r.Time = dateparse.FormatClock(dateparse.MinutesOfDay(booking.StartTime))
	r.DurationMinutes = booking.DurationMinutes
	r.Price = booking.Price
	r.Status = booking.Status

	if booking.HoldExpiresAt != nil {
		r.ExpiresAt = timezone.Format(*booking.HoldExpiresAt, constant.DateFormat)
	}
}

type PaymentWebhookRequest struct {
	BookingID       string `json:"booking_id"        validate:"required"`
	Status          string `json:"status"            validate:"required,oneof=paid failed"`
	ExternalEventID string `json:"external_event_id" validate:"omitempty,max=200"`
}

type BookingResponse struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	OwnerEmail      string  `json:"owner_email"`
	ServiceType     string  `json:"service_type"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	HoldExpiresAt   string  `json:"hold_expires_at,omitempty"`
	ExternalEventID string  `json:"external_event_id,omitempty"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(booking model.Booking) {
	r.ID = booking.ID
	r.OwnerID = booking.OwnerID
	r.OwnerEmail = booking.OwnerEmail
	r.ServiceType = booking.ServiceType
	r.Date = timezone.Format(booking.StartTime, constant.SlotDateFormat)
	r.Time = dateparse.FormatClock(dateparse.MinutesOfDay(booking.StartTime))
	r.EndTime = dateparse.FormatClock(dateparse.MinutesOfDay(booking.EndTime))
	r.DurationMinutes = booking.DurationMinutes
	r.Price = booking.Price
	r.Status = booking.Status
	r.PaymentStatus = booking.PaymentStatus

	if booking.HoldExpiresAt != nil {
		r.HoldExpiresAt = timezone.Format(*booking.HoldExpiresAt, constant.DateFormat)
	}

	if booking.ExternalEventID != nil {
		r.ExternalEventID = *booking.ExternalEventID
	}

	r.Metadata.FromModel(booking.Metadata)
}

type GetBookingsResponse struct {
	Bookings  []BookingResponse `json:"bookings"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetBookingsResponse) FromModels(models []model.Booking, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
	}
}

// NewHold builds the pending booking that backs a payment hold.
func NewHold(ownerID, ownerEmail, serviceType string, start time.Time, durationMinutes int, price float64, ttl time.Duration) model.Booking {
	expiresAt := timezone.Now().Add(ttl)

	return model.Booking{
		ID:              uuid.NewString(),
		ServiceType:     serviceType,
		OwnerID:         ownerID,
		OwnerEmail:      ownerEmail,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(durationMinutes) * time.Minute),
		DurationMinutes: durationMinutes,
		Price:           price,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		HoldExpiresAt:   &expiresAt,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  ownerID,
			ModifiedBy: ownerID,
		},
	}
}

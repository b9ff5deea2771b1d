package events

//go:generate go run go.uber.org/mock/mockgen -source=./events.go -destination=./mocks/events_mock.go -package=mocks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"agenda/config"
	"agenda/infras/kafka"
	"agenda/internal/domains/booking/model"
	"agenda/shared/timezone"
)

const (
	TypeHoldAcquired  = "hold_acquired"
	TypeConfirmed     = "booking_confirmed"
	TypeReleased      = "booking_released"
	TypePaymentFailed = "payment_failed"
)

// Event is the payload published on every booking lifecycle transition.
// Downstream consumers (notifications, analytics) key on the booking ID.
type Event struct {
	Type          string    `json:"type"`
	BookingID     string    `json:"booking_id"`
	OwnerID       string    `json:"owner_id"`
	ServiceType   string    `json:"service_type"`
	StartTime     time.Time `json:"start_time"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, booking model.Booking)
}

type kafkaPublisher struct {
	client kafka.Client
	cfg    *config.Config
}

func New(client kafka.Client, cfg *config.Config) Publisher {
	return &kafkaPublisher{
		client: client,
		cfg:    cfg,
	}
}

// Publish is fire and forget. Booking state is already durable when an
// event goes out, so a broker hiccup must never fail the request.
func (p *kafkaPublisher) Publish(ctx context.Context, eventType string, booking model.Booking) {
	if !p.cfg.Kafka.Enable {
		return
	}

	event := Event{
		Type:          eventType,
		BookingID:     booking.ID,
		OwnerID:       booking.OwnerID,
		ServiceType:   booking.ServiceType,
		StartTime:     booking.StartTime,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
		OccurredAt:    timezone.Now(),
	}

	go func() {
		c := context.WithoutCancel(ctx)

		message := kafka.Message{Key: booking.ID, Value: event}
		if err := p.client.SendMessages(c, p.cfg.Kafka.Topics.BookingEvents, message); err != nil {
			log.Error().Err(err).Str("bookingID", booking.ID).Str("eventType", eventType).Msg("failed to publish booking event")
		}
	}()
}

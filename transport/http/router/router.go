package router

import (
	"github.com/go-chi/chi/v5"

	"agenda/internal/handlers/availability"
	"agenda/internal/handlers/booking"
	"agenda/internal/handlers/payment"
	"agenda/internal/handlers/schedule"
)

type DomainHandlers struct {
	Schedule     schedule.Handler
	Booking      booking.Handler
	Availability availability.Handler
	Payment      payment.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
}

func (r *Router) SetupRoutes(router chi.Router) {
	router.Route("/v1", func(routerGroup chi.Router) {
		r.DomainHandlers.Schedule.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
		r.DomainHandlers.Availability.Router(routerGroup)
		r.DomainHandlers.Payment.Router(routerGroup)
	})
}

func New(domainHandlers DomainHandlers) Router {
	return Router{
		DomainHandlers: domainHandlers,
	}
}

package payment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rs/zerolog/log"

	"agenda/infras/otel"
	"agenda/internal/domains/booking/model/dto"
	"agenda/internal/domains/booking/service"
	"agenda/shared/constant"
	"agenda/shared/validator"
	"agenda/transport/http/response"
)

// Handler receives payment provider callbacks. The webhook route is guarded
// by the API key middleware, not by user auth.
type Handler struct {
	service service.Booking
	otel    otel.Otel
}

func New(service service.Booking, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/payments", func(routerGroup chi.Router) {
		routerGroup.Post("/webhook", handler.Webhook)
	})
}

// Webhook applies a payment outcome to its booking. Providers retry
// deliveries, so a repeated paid event must answer 200 again.
func (handler *Handler) Webhook(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Webhook")
	defer scope.End()

	req := dto.PaymentWebhookRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate webhook payload")

		response.WithError(writer, err)

		return
	}

	booking, err := handler.service.HandlePaymentEvent(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("bookingID", req.BookingID).Msg("failed to apply payment event")

		response.WithError(writer, err)

		return
	}

	scope.AddEvent("Payment event applied to booking " + req.BookingID)

	response.WithJSON(writer, http.StatusOK, booking)
}

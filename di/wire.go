//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"agenda/config"
	"agenda/infras/jwt"
	"agenda/infras/kafka"
	"agenda/infras/otel"
	"agenda/infras/postgres"
	"agenda/infras/redis"
	"agenda/permissions"
	"agenda/shared/cache"
	"agenda/transport/http"
	"agenda/transport/http/middleware"
	"agenda/transport/http/router"

	availabilityService "agenda/internal/domains/availability/service"
	bookingEvents "agenda/internal/domains/booking/events"
	bookingRepository "agenda/internal/domains/booking/repository"
	bookingService "agenda/internal/domains/booking/service"
	scheduleRepository "agenda/internal/domains/schedule/repository"
	scheduleService "agenda/internal/domains/schedule/service"

	availabilityHandler "agenda/internal/handlers/availability"
	bookingHandler "agenda/internal/handlers/booking"
	paymentHandler "agenda/internal/handlers/payment"
	scheduleHandler "agenda/internal/handlers/schedule"
)

var configurations = wire.NewSet(
	config.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	kafka.New,
	jwt.New,
	permissions.Get,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthRoleMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
)

var scheduleDomain = wire.NewSet(
	scheduleRepository.New,
	scheduleService.New,
)

var bookingDomain = wire.NewSet(
	bookingRepository.New,
	bookingEvents.New,
	bookingService.New,
)

var availabilityDomain = wire.NewSet(
	availabilityService.New,
)

var domains = wire.NewSet(
	scheduleDomain,
	bookingDomain,
	availabilityDomain,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	scheduleHandler.New,
	bookingHandler.New,
	availabilityHandler.New,
	paymentHandler.New,
	router.New,
)

// Application bundles the HTTP server with the services the entrypoints
// drive directly, like the hold sweeper.
type Application struct {
	HTTP     *http.HTTP
	Bookings bookingService.Booking
	Config   *config.Config
}

func InitializeApp() *Application {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		domains,
		routing,
		http.New,
		wire.Struct(new(Application), "*"),
	)

	return &Application{}
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"agenda/config"
	"agenda/infras/otel"
	"agenda/internal/domains/booking/events"
	"agenda/internal/domains/booking/model"
	"agenda/internal/domains/booking/model/dto"
	"agenda/internal/domains/booking/repository"
	scheduleModel "agenda/internal/domains/schedule/model"
	scheduleRepo "agenda/internal/domains/schedule/repository"
	"agenda/shared"
	"agenda/shared/cache"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	"agenda/shared/timezone"
)

const (
	cacheGetBooking    = "booking:get"
	cacheGetAllBooking = "booking:gets"
	cacheCountBooking  = "booking:count"
)

type Booking interface {
	AcquireHold(ctx context.Context, req dto.AcquireHoldRequest) (dto.HoldResponse, error)
	Confirm(ctx context.Context, id, externalEventID string) (dto.BookingResponse, error)
	Release(ctx context.Context, id string) error
	HandlePaymentEvent(ctx context.Context, req dto.PaymentWebhookRequest) (dto.BookingResponse, error)
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetBookingsResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	SweepExpiredHolds(ctx context.Context) error
}

type serviceImpl struct {
	repo         repository.Booking
	scheduleRepo scheduleRepo.Schedule
	events       events.Publisher
	cfg          *config.Config
	cache        cache.RedisCache
	otel         otel.Otel
}

func New(repo repository.Booking, scheduleRepo scheduleRepo.Schedule, events events.Publisher, cfg *config.Config, cache cache.RedisCache, otel otel.Otel) Booking {
	return &serviceImpl{
		repo:         repo,
		scheduleRepo: scheduleRepo,
		events:       events,
		cfg:          cfg,
		cache:        cache,
		otel:         otel,
	}
}

// AcquireHold reserves a slot as a pending booking with a payment deadline.
// The read-side checks are a courtesy; the unique index inside AcquireSlot
// is what actually decides races.
func (s *serviceImpl) AcquireHold(ctx context.Context, req dto.AcquireHoldRequest) (res dto.HoldResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".AcquireHold")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	email, _ := ctx.Value(constant.ContextKeyUserEmail).(string)

	day, err := dateparse.ParseDate(req.Date)
	if err != nil {
		return res, err
	}

	minutes, err := dateparse.ParseClock(req.Time)
	if err != nil {
		return res, err
	}

	start := dateparse.At(day, minutes)
	if start.Before(timezone.Now()) {
		return res, failure.BadRequestFromString("cannot book a slot in the past") //nolint:wrapcheck
	}

	schedule, err := s.findSchedule(ctx, req.ServiceType, int(start.Weekday()), minutes)
	if err != nil {
		return res, err
	}

	occupied, err := s.slotOccupied(ctx, req.ServiceType, start)
	if err != nil {
		return res, err
	}

	if occupied {
		return res, failure.SlotTakenError //nolint:wrapcheck
	}

	if schedule.MaxBookingsPerDay > 0 {
		full, err := s.dayIsFull(ctx, schedule, day)
		if err != nil {
			return res, err
		}

		if full {
			return res, failure.Conflict("daily booking limit reached for this service") //nolint:wrapcheck
		}
	}

	ttl := time.Duration(s.cfg.Scheduling.HoldTTLMinutes) * time.Minute
	hold := dto.NewHold(user, email, req.ServiceType, start, schedule.DurationMinutes, schedule.Price, ttl)

	if err = s.repo.AcquireSlot(ctx, hold); err != nil {
		log.Error().Err(err).Str("serviceType", req.ServiceType).Time("start", start).Msg("failed to acquire slot")

		return res, err
	}

	s.invalidateLists(ctx)
	s.events.Publish(ctx, events.TypeHoldAcquired, hold)

	res.FromModel(hold)

	return res, nil
}

// Confirm promotes a hold into a confirmed, paid booking. Confirming an
// already confirmed booking is a no-op so payment webhooks can be retried.
func (s *serviceImpl) Confirm(ctx context.Context, id, externalEventID string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Confirm")
	defer scope.End()
	defer scope.TraceIfError(err)

	booking, err := s.getModel(ctx, id)
	if err != nil {
		return res, err
	}

	switch booking.Status {
	case model.StatusConfirmed:
		res.FromModel(booking)

		return res, nil
	case model.StatusCancelled, model.StatusCompleted:
		return res, failure.Conflict("booking can no longer be confirmed") //nolint:wrapcheck
	}

	if !booking.Occupies(timezone.Now()) {
		return res, failure.Conflict("hold has expired") //nolint:wrapcheck
	}

	fields := map[string]any{
		model.FieldStatus:        model.StatusConfirmed,
		model.FieldPaymentStatus: model.PaymentPaid,
		model.FieldHoldExpiresAt: nil,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: "payment",
	}
	if externalEventID != constant.Empty {
		fields[model.FieldExternalEventID] = externalEventID
	}

	if err = s.repo.Update(ctx, fields, shared.FilterByID(id, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Str("bookingID", id).Msg("failed to confirm booking")

		return res, fmt.Errorf("failed to confirm booking: %w", err)
	}

	s.invalidate(ctx, id)

	booking, err = s.getModel(ctx, id)
	if err != nil {
		return res, err
	}

	s.events.Publish(ctx, events.TypeConfirmed, booking)

	res.FromModel(booking)

	return res, nil
}

// Release cancels a booking. Already cancelled bookings release cleanly, and
// a paid booking flips its payment status to refunded.
func (s *serviceImpl) Release(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Release")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	booking, err := s.getModel(ctx, id)
	if err != nil {
		return err
	}

	if role != constant.RoleAdmin && role != constant.RoleSuperAdmin && booking.OwnerID != user {
		return failure.ResourceRestrictedError //nolint:wrapcheck
	}

	if booking.Status == model.StatusCancelled {
		return nil
	}

	fields := map[string]any{
		model.FieldStatus:        model.StatusCancelled,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: user,
	}
	if booking.PaymentStatus == model.PaymentPaid {
		fields[model.FieldPaymentStatus] = model.PaymentRefunded
	}

	if err = s.repo.Update(ctx, fields, shared.FilterByID(id, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Str("bookingID", id).Msg("failed to release booking")

		return fmt.Errorf("failed to release booking: %w", err)
	}

	s.invalidate(ctx, id)

	booking.Status = model.StatusCancelled
	s.events.Publish(ctx, events.TypeReleased, booking)

	return nil
}

func (s *serviceImpl) HandlePaymentEvent(ctx context.Context, req dto.PaymentWebhookRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".HandlePaymentEvent")
	defer scope.End()
	defer scope.TraceIfError(err)

	if req.Status == model.PaymentPaid {
		return s.Confirm(ctx, req.BookingID, req.ExternalEventID)
	}

	booking, err := s.getModel(ctx, req.BookingID)
	if err != nil {
		return res, err
	}

	fields := map[string]any{
		model.FieldPaymentStatus: model.PaymentFailed,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: "payment",
	}
	if booking.Status == model.StatusPending {
		fields[model.FieldStatus] = model.StatusCancelled
	}

	if err = s.repo.Update(ctx, fields, shared.FilterByID(req.BookingID, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Str("bookingID", req.BookingID).Msg("failed to record payment failure")

		return res, fmt.Errorf("failed to record payment failure: %w", err)
	}

	s.invalidate(ctx, req.BookingID)

	booking, err = s.getModel(ctx, req.BookingID)
	if err != nil {
		return res, err
	}

	s.events.Publish(ctx, events.TypePaymentFailed, booking)

	res.FromModel(booking)

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetBooking, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for booking")

		return res, nil
	}

	booking, err := s.getModel(ctx, id)
	if err != nil {
		return res, err
	}

	res.FromModel(booking)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllBooking, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for bookings")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings")

		return res, fmt.Errorf("failed to get bookings: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save bookings to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Count")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountBooking, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for booking count")

		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking count to cache")
		}
	}()

	return res, nil
}

// SweepExpiredHolds compacts stale pending rows. Correctness never depends
// on it running; expired holds are already invisible to availability reads.
func (s *serviceImpl) SweepExpiredHolds(ctx context.Context) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".SweepExpiredHolds")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.repo.CancelExpiredHolds(ctx); err != nil {
		log.Error().Err(err).Msg("failed to sweep expired holds")

		return fmt.Errorf("failed to sweep expired holds: %w", err)
	}

	s.invalidateLists(ctx)

	return nil
}

func (s *serviceImpl) getModel(ctx context.Context, id string) (model.Booking, error) {
	booking, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("bookingID", id).Msg("failed to get booking")

		return booking, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == constant.Empty {
		return booking, failure.NotFound("booking not found") //nolint:wrapcheck
	}

	return booking, nil
}

func (s *serviceImpl) findSchedule(ctx context.Context, serviceType string, dayOfWeek, startMinute int) (scheduleModel.Schedule, error) {
	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: scheduleModel.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldDayOfWeek, Operator: gDto.FilterOperatorEq, Value: dayOfWeek, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldStartMinute, Operator: gDto.FilterOperatorEq, Value: startMinute, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldActive, Operator: gDto.FilterOperatorEq, Value: true, Table: scheduleModel.TableName},
		},
	}

	schedule, err := s.scheduleRepo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("serviceType", serviceType).Msg("failed to look up schedule for slot")

		return schedule, fmt.Errorf("failed to look up schedule for slot: %w", err)
	}

	if schedule.ID == constant.Empty {
		return schedule, failure.NotFound("no schedule offers this slot") //nolint:wrapcheck
	}

	return schedule, nil
}

func (s *serviceImpl) slotOccupied(ctx context.Context, serviceType string, start time.Time) (bool, error) {
	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: model.TableName},
			gDto.Filter{Field: model.FieldStartTime, Operator: gDto.FilterOperatorEq, Value: start, Table: model.TableName},
			gDto.Filter{Field: model.FieldStatus, Operator: gDto.FilterOperatorIn, Value: model.ActiveStatuses, Table: model.TableName},
		},
	}

	bookings, err := s.repo.GetAll(ctx, gDto.QueryParams{}, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to check slot occupancy")

		return false, fmt.Errorf("failed to check slot occupancy: %w", err)
	}

	now := timezone.Now()
	for _, booking := range bookings {
		if booking.Occupies(now) {
			return true, nil
		}
	}

	return false, nil
}

func (s *serviceImpl) dayIsFull(ctx context.Context, schedule scheduleModel.Schedule, day time.Time) (bool, error) {
	dayStart := dateparse.At(day, 0)
	dayEnd := dayStart.Add(24 * time.Hour)

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: schedule.ServiceType, Table: model.TableName},
			gDto.Filter{Field: model.FieldStartTime, Operator: gDto.FilterOperatorGreaterEq, Value: dayStart, Table: model.TableName, ArgName: "day_start"},
			gDto.Filter{Field: model.FieldStartTime, Operator: gDto.FilterOperatorLessEq, Value: dayEnd.Add(-time.Second), Table: model.TableName, ArgName: "day_end"},
			gDto.Filter{Field: model.FieldStatus, Operator: gDto.FilterOperatorIn, Value: model.ActiveStatuses, Table: model.TableName},
		},
	}

	bookings, err := s.repo.GetAll(ctx, gDto.QueryParams{}, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to check daily booking limit")

		return false, fmt.Errorf("failed to check daily booking limit: %w", err)
	}

	now := timezone.Now()
	occupying := 0

	for _, booking := range bookings {
		if booking.Occupies(now) {
			occupying++
		}
	}

	return occupying >= schedule.MaxBookingsPerDay, nil
}

func (s *serviceImpl) invalidate(ctx context.Context, id string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetBooking, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete booking from cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, cacheCountBooking)
	}()
}

func (s *serviceImpl) invalidateLists(ctx context.Context) {
	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, cacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, cacheCountBooking)
	}()
}

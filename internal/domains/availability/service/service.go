package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"agenda/config"
	"agenda/infras/otel"
	"agenda/internal/domains/availability/model/dto"
	bookingModel "agenda/internal/domains/booking/model"
	bookingRepo "agenda/internal/domains/booking/repository"
	scheduleModel "agenda/internal/domains/schedule/model"
	scheduleRepo "agenda/internal/domains/schedule/repository"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	"agenda/shared/timezone"
)

type Availability interface {
	Check(ctx context.Context, req dto.CheckRequest) (dto.CheckResponse, error)
	Slots(ctx context.Context, req dto.SlotsRequest) (dto.SlotsResponse, error)
}

type serviceImpl struct {
	schedules scheduleRepo.Schedule
	bookings  bookingRepo.Booking
	cfg       *config.Config
	otel      otel.Otel
}

func New(schedules scheduleRepo.Schedule, bookings bookingRepo.Booking, cfg *config.Config, otel otel.Otel) Availability {
	return &serviceImpl{
		schedules: schedules,
		bookings:  bookings,
		cfg:       cfg,
		otel:      otel,
	}
}

// Check decides whether one concrete slot can still be booked. A storage
// error is returned as such; it never degrades into an available answer.
func (s *serviceImpl) Check(ctx context.Context, req dto.CheckRequest) (res dto.CheckResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Check")
	defer scope.End()
	defer scope.TraceIfError(err)

	day, err := dateparse.ParseDate(req.Date)
	if err != nil {
		return res, err
	}

	minutes, err := dateparse.ParseClock(req.Time)
	if err != nil {
		return res, err
	}

	start := dateparse.At(day, minutes)

	schedule, found, err := s.findSchedule(ctx, req.ServiceType, int(start.Weekday()), minutes)
	if err != nil {
		return res, err
	}

	if !found {
		res.Reasons = append(res.Reasons, "no active schedule offers this slot")

		return res, nil
	}

	end := start.Add(time.Duration(schedule.DurationMinutes) * time.Minute)

	conflicts, err := s.countConflicts(ctx, req.ServiceType, start, end)
	if err != nil {
		return res, err
	}

	res.Conflicts = conflicts
	if conflicts > 0 {
		res.Reasons = append(res.Reasons, "slot is already booked")
	}

	if schedule.MaxBookingsPerDay > 0 {
		count, err := s.countDayBookings(ctx, req.ServiceType, day)
		if err != nil {
			return res, err
		}

		if count >= schedule.MaxBookingsPerDay {
			res.Reasons = append(res.Reasons, "daily booking limit reached")
		}
	}

	res.Available = len(res.Reasons) == 0

	return res, nil
}

// Slots expands every active template over a date range and filters out the
// slots already taken. The range is capped to keep the expansion bounded.
func (s *serviceImpl) Slots(ctx context.Context, req dto.SlotsRequest) (res dto.SlotsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Slots")
	defer scope.End()
	defer scope.TraceIfError(err)

	from, err := dateparse.ParseDate(req.From)
	if err != nil {
		return res, err
	}

	to, err := dateparse.ParseDate(req.To)
	if err != nil {
		return res, err
	}

	fromDay := dateparse.At(from, 0)
	toDay := dateparse.At(to, 0)

	if toDay.Before(fromDay) {
		return res, failure.InvalidDateRangeParam //nolint:wrapcheck
	}

	maxRange := time.Duration(s.cfg.Scheduling.MaxRangeDays) * 24 * time.Hour
	if toDay.Sub(fromDay) > maxRange {
		return res, failure.BadRequestFromString(fmt.Sprintf("date range must not exceed %d days", s.cfg.Scheduling.MaxRangeDays)) //nolint:wrapcheck
	}

	schedules, err := s.activeSchedules(ctx, req.ServiceType)
	if err != nil {
		return res, err
	}

	bookings, err := s.activeBookings(ctx, req.ServiceType, fromDay, toDay.Add(24*time.Hour))
	if err != nil {
		return res, err
	}

	byDay := make(map[int][]scheduleModel.Schedule)
	for _, schedule := range schedules {
		byDay[schedule.DayOfWeek] = append(byDay[schedule.DayOfWeek], schedule)
	}

	now := timezone.Now()
	res.Slots = []dto.AvailableSlot{}

	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		for _, schedule := range byDay[int(day.Weekday())] {
			start := day.Add(time.Duration(schedule.StartMinute) * time.Minute)
			end := start.Add(time.Duration(schedule.DurationMinutes) * time.Minute)

			if start.Before(now) {
				continue
			}

			if s.slotTaken(bookings, schedule.ServiceType, start, end, now) {
				continue
			}

			if schedule.MaxBookingsPerDay > 0 &&
				dayBookingCount(bookings, schedule.ServiceType, day, now) >= schedule.MaxBookingsPerDay {
				continue
			}

			res.Slots = append(res.Slots, dto.AvailableSlot{
				ServiceType:     schedule.ServiceType,
				Date:            timezone.Format(day, constant.SlotDateFormat),
				DayOfWeek:       schedule.DayOfWeek,
				Time:            dateparse.FormatClock(schedule.StartMinute),
				EndTime:         dateparse.FormatClock(schedule.EndMinute()),
				DurationMinutes: schedule.DurationMinutes,
				Price:           schedule.Price,
			})
		}
	}

	res.TotalData = len(res.Slots)

	return res, nil
}

func (s *serviceImpl) findSchedule(ctx context.Context, serviceType string, dayOfWeek, startMinute int) (scheduleModel.Schedule, bool, error) {
	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: scheduleModel.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldDayOfWeek, Operator: gDto.FilterOperatorEq, Value: dayOfWeek, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldStartMinute, Operator: gDto.FilterOperatorEq, Value: startMinute, Table: scheduleModel.TableName},
			gDto.Filter{Field: scheduleModel.FieldActive, Operator: gDto.FilterOperatorEq, Value: true, Table: scheduleModel.TableName},
		},
	}

	schedule, err := s.schedules.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("serviceType", serviceType).Msg("failed to look up schedule")

		return schedule, false, failure.StorageUnavailable(err) //nolint:wrapcheck
	}

	return schedule, schedule.ID != constant.Empty, nil
}

// countConflicts counts occupying bookings that collide with [start, end).
// The overlap policy compares intervals; the legacy exact_start policy only
// collides on an identical start instant.
func (s *serviceImpl) countConflicts(ctx context.Context, serviceType string, start, end time.Time) (int, error) {
	bookings, err := s.activeBookings(ctx, serviceType, dateparse.At(start, 0), dateparse.At(start, 0).Add(24*time.Hour))
	if err != nil {
		return 0, err
	}

	now := timezone.Now()
	conflicts := 0

	for _, booking := range bookings {
		if !booking.Occupies(now) {
			continue
		}

		switch s.cfg.Scheduling.ConflictPolicy {
		case constant.ConflictPolicyExactStart:
			if booking.StartsAt(start) {
				conflicts++
			}
		default:
			if booking.OverlapsWindow(start, end) {
				conflicts++
			}
		}
	}

	return conflicts, nil
}

func (s *serviceImpl) countDayBookings(ctx context.Context, serviceType string, day time.Time) (int, error) {
	dayStart := dateparse.At(day, 0)

	bookings, err := s.activeBookings(ctx, serviceType, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}

	now := timezone.Now()
	count := 0

	for _, booking := range bookings {
		if booking.Occupies(now) {
			count++
		}
	}

	return count, nil
}

func (s *serviceImpl) activeSchedules(ctx context.Context, serviceType string) ([]scheduleModel.Schedule, error) {
	filters := []any{
		gDto.Filter{Field: scheduleModel.FieldActive, Operator: gDto.FilterOperatorEq, Value: true, Table: scheduleModel.TableName},
	}
	if serviceType != constant.Empty {
		filters = append(filters, gDto.Filter{Field: scheduleModel.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: scheduleModel.TableName})
	}

	params := gDto.QueryParams{SortBy: scheduleModel.FieldStartMinute, SortDir: "ASC"}

	schedules, err := s.schedules.GetAll(ctx, params, gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd, Filters: filters})
	if err != nil {
		log.Error().Err(err).Msg("failed to load schedules for availability")

		return nil, failure.StorageUnavailable(err) //nolint:wrapcheck
	}

	return schedules, nil
}

func (s *serviceImpl) activeBookings(ctx context.Context, serviceType string, from, to time.Time) ([]bookingModel.Booking, error) {
	filters := []any{
		gDto.Filter{Field: bookingModel.FieldStatus, Operator: gDto.FilterOperatorIn, Value: bookingModel.ActiveStatuses, Table: bookingModel.TableName},
		gDto.Filter{Field: bookingModel.FieldStartTime, Operator: gDto.FilterOperatorGreaterEq, Value: from, Table: bookingModel.TableName, ArgName: "window_from"},
		gDto.Filter{Field: bookingModel.FieldStartTime, Operator: gDto.FilterOperatorLessEq, Value: to.Add(-time.Second), Table: bookingModel.TableName, ArgName: "window_to"},
	}
	if serviceType != constant.Empty {
		filters = append(filters, gDto.Filter{Field: bookingModel.FieldServiceType, Operator: gDto.FilterOperatorEq, Value: serviceType, Table: bookingModel.TableName})
	}

	bookings, err := s.bookings.GetAll(ctx, gDto.QueryParams{}, gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd, Filters: filters})
	if err != nil {
		log.Error().Err(err).Msg("failed to load bookings for availability")

		return nil, failure.StorageUnavailable(err) //nolint:wrapcheck
	}

	return bookings, nil
}

func (s *serviceImpl) slotTaken(bookings []bookingModel.Booking, serviceType string, start, end time.Time, now time.Time) bool {
	for _, booking := range bookings {
		if booking.ServiceType != serviceType || !booking.Occupies(now) {
			continue
		}

		if s.cfg.Scheduling.ConflictPolicy == constant.ConflictPolicyExactStart {
			if booking.StartsAt(start) {
				return true
			}

			continue
		}

		if booking.OverlapsWindow(start, end) {
			return true
		}
	}

	return false
}

func dayBookingCount(bookings []bookingModel.Booking, serviceType string, day time.Time, now time.Time) int {
	next := day.AddDate(0, 0, 1)
	count := 0

	for _, booking := range bookings {
		if booking.ServiceType != serviceType || !booking.Occupies(now) {
			continue
		}

		if !booking.StartTime.Before(day) && booking.StartTime.Before(next) {
			count++
		}
	}

	return count
}

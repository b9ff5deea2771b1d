package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"agenda/config"
	"agenda/infras/otel"
	"agenda/internal/domains/schedule/model"
	"agenda/internal/domains/schedule/model/dto"
	"agenda/internal/domains/schedule/repository"
	"agenda/shared"
	"agenda/shared/cache"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	"agenda/shared/timezone"
)

const (
	cacheGetSchedule    = "schedule:get"
	cacheGetAllSchedule = "schedule:gets"
	cacheCountSchedule  = "schedule:count"
)

const maxSuggestions = 3

type Schedule interface {
	Create(ctx context.Context, req dto.CreateScheduleRequest) error
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetSchedulesResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.ScheduleResponse, error)
	Update(ctx context.Context, req dto.UpdateScheduleRequest, id string) error
	Deactivate(ctx context.Context, id string) error
	ValidateSlot(ctx context.Context, req dto.ValidateSlotRequest) (dto.ValidateSlotResponse, error)
}

type serviceImpl struct {
	repo  repository.Schedule
	cfg   *config.Config
	cache cache.RedisCache
	otel  otel.Otel
}

func New(repo repository.Schedule, cfg *config.Config, cache cache.RedisCache, otel otel.Otel) Schedule {
	return &serviceImpl{
		repo:  repo,
		cfg:   cfg,
		cache: cache,
		otel:  otel,
	}
}

func (s *serviceImpl) Create(ctx context.Context, req dto.CreateScheduleRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	schedules, err := req.ToModels(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse schedule request")

		return err
	}

	// Grace-period validation guards against admin misconfiguration before
	// the unique key gets a say.
	for _, schedule := range schedules {
		conflicts, _, err := s.findGraceConflicts(ctx, schedule.DayOfWeek, schedule.StartMinute, schedule.EndMinute(), s.cfg.Scheduling.GraceMinutes, constant.Empty)
		if err != nil {
			return err
		}

		if len(conflicts) > 0 {
			return failure.Conflict(fmt.Sprintf(
				"proposed window %s-%s on day %d falls within the grace period of an existing schedule",
				dateparse.FormatClock(schedule.StartMinute),
				dateparse.FormatClock(schedule.EndMinute()),
				schedule.DayOfWeek,
			)) //nolint:wrapcheck
		}
	}

	if len(schedules) == 1 {
		err = s.repo.Insert(ctx, schedules[0])
	} else {
		err = s.repo.InsertBulk(ctx, schedules)
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to create schedule")

		return err
	}

	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, cacheGetAllSchedule)
		shared.InvalidateCaches(c, s.cache, cacheCountSchedule)
	}()

	return nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetSchedulesResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllSchedule, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for schedules")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count schedules")

		return res, fmt.Errorf("failed to count schedules: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get schedules")

		return res, fmt.Errorf("failed to get schedules: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save schedules to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Count")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountSchedule, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for schedule count")

		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count schedules")

		return res, fmt.Errorf("failed to count schedules: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save schedule count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.ScheduleResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetSchedule, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for schedule")

		return res, nil
	}

	schedule, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get schedule")

		return res, fmt.Errorf("failed to get schedule: %w", err)
	}

	if schedule.ID == constant.Empty {
		return res, failure.NotFound("schedule not found") //nolint:wrapcheck
	}

	res.FromModel(schedule)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save schedule to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Update(ctx context.Context, req dto.UpdateScheduleRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Update")
	defer scope.End()
	defer scope.TraceIfError(err)

	if req == (dto.UpdateScheduleRequest{}) {
		return failure.BadRequestFromString("update request cannot be empty") //nolint:wrapcheck
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := shared.FilterByID(id, model.FieldID, model.TableName)

	schedule, err := s.repo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get schedule")

		return fmt.Errorf("failed to get schedule: %w", err)
	}

	if schedule.ID == constant.Empty {
		return failure.NotFound("schedule not found") //nolint:wrapcheck
	}

	updatedFields, err := req.ToFields(user)
	if err != nil {
		return err
	}

	// Re-run the grace check when the window moves or grows.
	startMinute := schedule.StartMinute
	if v, ok := updatedFields[model.FieldStartMinute].(int); ok {
		startMinute = v
	}

	durationMinutes := schedule.DurationMinutes
	if req.DurationMinutes != 0 {
		durationMinutes = req.DurationMinutes
	}

	if startMinute != schedule.StartMinute || durationMinutes != schedule.DurationMinutes {
		conflicts, _, err := s.findGraceConflicts(ctx, schedule.DayOfWeek, startMinute, startMinute+durationMinutes, s.cfg.Scheduling.GraceMinutes, schedule.ID)
		if err != nil {
			return err
		}

		if len(conflicts) > 0 {
			return failure.Conflict("updated window falls within the grace period of an existing schedule") //nolint:wrapcheck
		}
	}

	if err := s.repo.Update(ctx, updatedFields, filter); err != nil {
		log.Error().Err(err).Msg("failed to update schedule")

		return fmt.Errorf("failed to update schedule: %w", err)
	}

	s.invalidate(ctx, id)

	return nil
}

// Deactivate retires a template without deleting it, so historical bookings
// keep their pricing context.
func (s *serviceImpl) Deactivate(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Deactivate")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := shared.FilterByID(id, model.FieldID, model.TableName)

	exist, err := s.repo.Exist(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to check if schedule exists")

		return fmt.Errorf("failed to check if schedule exists: %w", err)
	}

	if !exist {
		log.Error().Msg("schedule not found")

		return failure.NotFound("schedule not found") //nolint:wrapcheck
	}

	fields := map[string]any{
		model.FieldActive:        false,
		constant.FieldModifiedBy: user,
		constant.FieldModifiedAt: timezone.Now(),
	}

	if err := s.repo.Update(ctx, fields, filter); err != nil {
		log.Error().Err(err).Msg("failed to deactivate schedule")

		return fmt.Errorf("failed to deactivate schedule: %w", err)
	}

	s.invalidate(ctx, id)

	return nil
}

func (s *serviceImpl) ValidateSlot(ctx context.Context, req dto.ValidateSlotRequest) (res dto.ValidateSlotResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ValidateSlot")
	defer scope.End()
	defer scope.TraceIfError(err)

	startMinute, err := dateparse.ParseClock(req.StartTime)
	if err != nil {
		return res, err
	}

	endMinute, err := dateparse.ParseClock(req.EndTime)
	if err != nil {
		return res, err
	}

	if endMinute <= startMinute {
		return res, failure.BadRequestFromString("end_time must be after start_time") //nolint:wrapcheck
	}

	graceMinutes := req.GraceMinutes
	if graceMinutes == 0 {
		graceMinutes = s.cfg.Scheduling.GraceMinutes
	}

	conflicts, suggestions, err := s.findGraceConflicts(ctx, *req.DayOfWeek, startMinute, endMinute, graceMinutes, constant.Empty)
	if err != nil {
		return res, err
	}

	res.IsValid = len(conflicts) == 0
	res.Conflicts = conflicts
	res.Suggestions = suggestions

	return res, nil
}

// findGraceConflicts compares a proposed window on a weekday against every
// active template of every service type, padded by graceMinutes on both
// sides. It also proposes alternative start times right after each
// conflicting padded window.
func (s *serviceImpl) findGraceConflicts(ctx context.Context, dayOfWeek, startMinute, endMinute, graceMinutes int, excludeID string) ([]dto.SlotConflict, []string, error) {
	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldDayOfWeek,
				Operator: gDto.FilterOperatorEq,
				Value:    dayOfWeek,
				Table:    model.TableName,
			},
			gDto.Filter{
				Field:    model.FieldActive,
				Operator: gDto.FilterOperatorEq,
				Value:    true,
				Table:    model.TableName,
			},
		},
	}

	existing, err := s.repo.GetAll(ctx, gDto.QueryParams{}, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to load schedules for grace validation")

		return nil, nil, fmt.Errorf("failed to load schedules for grace validation: %w", err)
	}

	conflicts := []dto.SlotConflict{}
	suggestions := []string{}

	for _, schedule := range existing {
		if schedule.ID == excludeID {
			continue
		}

		paddedStart := schedule.StartMinute - graceMinutes
		paddedEnd := schedule.EndMinute() + graceMinutes

		if startMinute >= paddedEnd || endMinute <= paddedStart {
			continue
		}

		conflicts = append(conflicts, dto.SlotConflict{
			ScheduleID:  schedule.ID,
			ServiceType: schedule.ServiceType,
			DayOfWeek:   schedule.DayOfWeek,
			StartTime:   dateparse.FormatClock(schedule.StartMinute),
			EndTime:     dateparse.FormatClock(schedule.EndMinute()),
		})

		candidate := paddedEnd
		duration := endMinute - startMinute

		if candidate+duration <= constant.MinutesPerDay &&
			!windowConflicts(existing, excludeID, candidate, candidate+duration, graceMinutes) {
			suggestion := dateparse.FormatClock(candidate)
			if !slices.Contains(suggestions, suggestion) && len(suggestions) < maxSuggestions {
				suggestions = append(suggestions, suggestion)
			}
		}
	}

	return conflicts, suggestions, nil
}

func windowConflicts(existing []model.Schedule, excludeID string, startMinute, endMinute, graceMinutes int) bool {
	for _, schedule := range existing {
		if schedule.ID == excludeID {
			continue
		}

		paddedStart := schedule.StartMinute - graceMinutes
		paddedEnd := schedule.EndMinute() + graceMinutes

		if startMinute < paddedEnd && endMinute > paddedStart {
			return true
		}
	}

	return false
}

func (s *serviceImpl) invalidate(ctx context.Context, id string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetSchedule, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete schedule from cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllSchedule)
		shared.InvalidateCaches(c, s.cache, cacheCountSchedule)
	}()
}

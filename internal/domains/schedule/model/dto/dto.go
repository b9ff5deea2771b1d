package dto

import (
	"github.com/google/uuid"

	"agenda/internal/domains/schedule/model"
	"agenda/shared"
	"agenda/shared/constant"
	"agenda/shared/dateparse"
	gDto "agenda/shared/dto"
	"agenda/shared/failure"
	gModel "agenda/shared/model"
	"agenda/shared/timezone"
)

type CreateScheduleRequest struct {
	ServiceType       string  `json:"service_type"         validate:"required,max=100"`
	DaysOfWeek        []int   `json:"days_of_week"         validate:"required,min=1,dive,dayofweek"`
	StartTime         string  `json:"start_time"           validate:"required,clock"`
	DurationMinutes   int     `json:"duration_minutes"     validate:"required,gte=15,lte=480"`
	Price             float64 `json:"price"                validate:"gte=0"`
	MaxBookingsPerDay int     `json:"max_bookings_per_day" validate:"gte=0"`
}

// ToModels expands the request into one template row per requested weekday.
func (c *CreateScheduleRequest) ToModels(user string) ([]model.Schedule, error) {
	startMinute, err := dateparse.ParseClock(c.StartTime)
	if err != nil {
		return nil, err
	}

	if startMinute+c.DurationMinutes > constant.MinutesPerDay {
		return nil, failure.BadRequestFromString("schedule window must not cross midnight") //nolint:wrapcheck
	}

	schedules := make([]model.Schedule, len(c.DaysOfWeek))
	for i, day := range c.DaysOfWeek {
		schedules[i] = model.Schedule{
			ID:                uuid.NewString(),
			ServiceType:       c.ServiceType,
			DayOfWeek:         day,
			StartMinute:       startMinute,
			DurationMinutes:   c.DurationMinutes,
			Price:             c.Price,
			MaxBookingsPerDay: c.MaxBookingsPerDay,
			Active:            true,
			Metadata: gModel.Metadata{
				CreatedAt:  timezone.Now(),
				ModifiedAt: timezone.Now(),
				CreatedBy:  user,
				ModifiedBy: user,
			},
		}
	}

	return schedules, nil
}

type UpdateScheduleRequest struct {
	StartTime         string   `json:"start_time"           validate:"omitempty,clock"`
	DurationMinutes   int      `db:"duration_minutes"       json:"duration_minutes"     validate:"omitempty,gte=15,lte=480"`
	Price             *float64 `db:"price"                  json:"price"                validate:"omitempty"`
	MaxBookingsPerDay *int     `db:"max_bookings_per_day"   json:"max_bookings_per_day" validate:"omitempty"`
	Active            *bool    `db:"active"                 json:"active"               validate:"omitempty"`
}

// ToFields builds the update map, converting the optional start time into
// its stored minutes-since-midnight form.
func (u *UpdateScheduleRequest) ToFields(user string) (map[string]any, error) {
	fields := shared.TransformFields(*u, user)

	if u.StartTime != constant.Empty {
		startMinute, err := dateparse.ParseClock(u.StartTime)
		if err != nil {
			return nil, err
		}

		fields[model.FieldStartMinute] = startMinute
	}

	return fields, nil
}

type ScheduleResponse struct {
	ID                string  `json:"id"`
	ServiceType       string  `json:"service_type"`
	DayOfWeek         int     `json:"day_of_week"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	DurationMinutes   int     `json:"duration_minutes"`
	Price             float64 `json:"price"`
	MaxBookingsPerDay int     `json:"max_bookings_per_day"`
	Active            bool    `json:"active"`
	gDto.Metadata
}

func (r *ScheduleResponse) FromModel(model model.Schedule) {
	r.ID = model.ID
	r.ServiceType = model.ServiceType
	r.DayOfWeek = model.DayOfWeek
	r.StartTime = dateparse.FormatClock(model.StartMinute)
	r.EndTime = dateparse.FormatClock(model.EndMinute())
	r.DurationMinutes = model.DurationMinutes
	r.Price = model.Price
	r.MaxBookingsPerDay = model.MaxBookingsPerDay
	r.Active = model.Active
	r.Metadata.FromModel(model.Metadata)
}

type GetSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
	TotalPage int                `json:"total_page"`
	TotalData int                `json:"total_data"`
}

func (r *GetSchedulesResponse) FromModels(models []model.Schedule, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Schedules = make([]ScheduleResponse, len(models))
	for i, mod := range models {
		r.Schedules[i].FromModel(mod)
	}
}

type ValidateSlotRequest struct {
	DayOfWeek    *int   `json:"day_of_week"   validate:"required,dayofweek"`
	StartTime    string `json:"start_time"    validate:"required,clock"`
	EndTime      string `json:"end_time"      validate:"required,clock"`
	GraceMinutes int    `json:"grace_minutes" validate:"gte=0,lte=240"`
}

type SlotConflict struct {
	ScheduleID  string `json:"schedule_id"`
	ServiceType string `json:"service_type"`
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type ValidateSlotResponse struct {
	IsValid     bool           `json:"is_valid"`
	Conflicts   []SlotConflict `json:"conflicts"`
	Suggestions []string       `json:"suggestions"`
}

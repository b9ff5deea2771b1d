package model

import (
	"agenda/shared/model"
)

const (
	TableName  = "schedules"
	EntityName = "schedule"

	FieldID                = "id"
	FieldServiceType       = "service_type"
	FieldDayOfWeek         = "day_of_week"
	FieldStartMinute       = "start_minute"
	FieldDurationMinutes   = "duration_minutes"
	FieldPrice             = "price"
	FieldMaxBookingsPerDay = "max_bookings_per_day"
	FieldActive            = "active"
)

// Schedule is a weekly recurring availability template. Times of day are
// stored as minutes since midnight; rows are deactivated, never deleted.
type Schedule struct {
	ID                string  `db:"id"`
	ServiceType       string  `db:"service_type"`
	DayOfWeek         int     `db:"day_of_week"`
	StartMinute       int     `db:"start_minute"`
	DurationMinutes   int     `db:"duration_minutes"`
	Price             float64 `db:"price"`
	MaxBookingsPerDay int     `db:"max_bookings_per_day"`
	Active            bool    `db:"active"`
	model.Metadata
}

// EndMinute is the exclusive end of the template window.
func (s Schedule) EndMinute() int {
	return s.StartMinute + s.DurationMinutes
}

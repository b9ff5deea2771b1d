package dto

type CheckRequest struct {
	ServiceType string `json:"service_type" validate:"required,max=100"`
	Date        string `json:"date"         validate:"required"`
	Time        string `json:"time"         validate:"required,clock"`
}

type CheckResponse struct {
	Available bool     `json:"available"`
	Conflicts int      `json:"conflicts"`
	Reasons   []string `json:"reasons,omitempty"`
}

type SlotsRequest struct {
	ServiceType string `json:"service_type" validate:"omitempty,max=100"`
	From        string `json:"from"         validate:"required"`
	To          string `json:"to"           validate:"required"`
}

type AvailableSlot struct {
	ServiceType     string  `json:"service_type"`
	Date            string  `json:"date"`
	DayOfWeek       int     `json:"day_of_week"`
	Time            string  `json:"time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
}

type SlotsResponse struct {
	Slots     []AvailableSlot `json:"slots"`
	TotalData int             `json:"total_data"`
}

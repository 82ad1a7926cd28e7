package models

// ForecastRequest selects a stored week; empty means the current week.
type ForecastRequest struct {
	Week string `query:"week" validate:"omitempty,datetime=2006-01-02"`
}

type PerformanceRequest struct {
	Weeks int `query:"weeks" default:"8" validate:"min=1,max=52"`
}

// ForecastResponse is one stored week of hourly forecasts.
type ForecastResponse struct {
	WindowID  string              `json:"window_id"`
	Start     string              `json:"start"`
	End       string              `json:"end"`
	Forecasts []PublishedForecast `json:"forecasts"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

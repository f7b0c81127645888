package domain

// Location is a named place to fetch forecasts for. Loaded once at startup.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DailyRecord is the sunrise/sunset envelope of one calendar day.
type DailyRecord struct {
	SunriseTime int64 `json:"sunriseTime"`
	SunsetTime  int64 `json:"sunsetTime"`
}

// HourlyRecord is one hour of forecast data.
type HourlyRecord struct {
	Time                int64   `json:"time"`
	PrecipIntensity     float64 `json:"precipIntensity"`
	PrecipProbability   float64 `json:"precipProbability"`
	Temperature         float64 `json:"temperature"`
	ApparentTemperature float64 `json:"apparentTemperature"`
	DewPoint            float64 `json:"dewPoint"`
	Humidity            float64 `json:"humidity"`
	WindSpeed           float64 `json:"windSpeed"`
	WindBearing         float64 `json:"windBearing"`
	CloudCover          float64 `json:"cloudCover"`
	Pressure            float64 `json:"pressure"`
	Ozone               float64 `json:"ozone"`
}

// Forecast is the decoded result of a single provider request.
type Forecast struct {
	Daily  []DailyRecord
	Hourly []HourlyRecord
}

// FetchOptions are passed through to the provider unvalidated.
type FetchOptions struct {
	Exclude      []string
	Units        string
	Language     string
	ExtendHourly bool
}

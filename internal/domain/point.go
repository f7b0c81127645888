package domain

import (
	"maps"
	"strconv"
	"time"
)

// Measurement, tag, and field names written to InfluxDB.
const (
	MeasurementForecast = "forecast"
	MeasurementHistory  = "forecast_history"

	SourceDarkSky = "darksky"

	TagSource         = "source"
	TagLocation       = "location"
	TagForecastTime   = "forecast_time_tag"
	FieldForecastTime = "forecast_time_field"
)

// showValue is the "visible" level of the day/night plotting helpers.
const showValue = -10.0

// Point is a single time-series row. Never mutated after construction.
type Point struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	Timestamp   int64             `json:"timestamp"` // nanoseconds since epoch
}

// Time returns the point timestamp as a time.Time in UTC.
func (p Point) Time() time.Time {
	return time.Unix(0, p.Timestamp).UTC()
}

// PointSet holds the points built from one hourly record. History is nil
// unless history recording is enabled.
type PointSet struct {
	Live    Point
	History *Point
}

// NanoTimestamp converts epoch seconds to epoch nanoseconds using integer
// arithmetic only.
func NanoTimestamp(sec int64) int64 {
	return sec * int64(time.Second)
}

// NewForecastPoint builds the live "forecast" point for rec.
func NewForecastPoint(rec HourlyRecord, daytime bool, location string) Point {
	sunCover := 0.0
	daytimeShow := 0.0
	nightimeShow := showValue
	if daytime {
		sunCover = 1 - rec.CloudCover
		daytimeShow = showValue
		nightimeShow = 0
	}

	return Point{
		Measurement: MeasurementForecast,
		Tags: map[string]string{
			TagSource:   SourceDarkSky,
			TagLocation: location,
		},
		Fields: map[string]any{
			"precipIntensity":      rec.PrecipIntensity,
			"precipProbability":    rec.PrecipProbability,
			"temperature":          rec.Temperature,
			"apparent_temperature": rec.ApparentTemperature,
			"dew_point":            rec.DewPoint,
			"humidity":             rec.Humidity,
			"wind_speed":           rec.WindSpeed,
			"wind_bearing":         rec.WindBearing,
			"cloud_cover":          rec.CloudCover,
			"sun_cover":            sunCover,
			"pressure":             rec.Pressure,
			"ozone":                rec.Ozone,
			"daytime":              daytime,
			"daytime_show":         daytimeShow,
			"nightime_show":        nightimeShow,
		},
		Timestamp: NanoTimestamp(rec.Time),
	}
}

// NewHistoryPoint derives the "forecast_history" variant of a live point.
// The live point is left untouched.
func NewHistoryPoint(live Point, forecastTime int64) Point {
	tags := maps.Clone(live.Tags)
	tags[TagForecastTime] = strconv.FormatInt(forecastTime, 10)

	fields := maps.Clone(live.Fields)
	// Written as a float to match the field type existing databases already hold.
	fields[FieldForecastTime] = float64(forecastTime)

	return Point{
		Measurement: MeasurementHistory,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   live.Timestamp,
	}
}

// BuildPoints classifies every hourly record of fc and returns its points in
// provider order.
func BuildPoints(loc Location, fc Forecast, withHistory bool) []PointSet {
	sets := make([]PointSet, 0, len(fc.Hourly))
	for _, rec := range fc.Hourly {
		live := NewForecastPoint(rec, IsDaytime(rec.Time, fc.Daily), loc.Name)
		set := PointSet{Live: live}
		if withHistory {
			hist := NewHistoryPoint(live, rec.Time)
			set.History = &hist
		}
		sets = append(sets, set)
	}
	return sets
}

// Package domain models Dark Sky style forecast data and the InfluxDB points
// derived from it.
//
// # Data Source
//
// Forecasts come from the Dark Sky forecast API (or a compatible provider such
// as Pirate Weather) for one latitude/longitude pair per request. The importer
// asks for the "daily" and "hourly" blocks only, with the hourly block extended
// to the provider's maximum horizon:
//
//	GET /forecast/<key>/<lat>,<lon>?exclude=minutely,currently,alerts,flags&extend=hourly
//
// All times in the payload are UNIX epoch seconds.
//
// # Daylight
//
// An hourly record is daytime when its time falls strictly between the
// sunriseTime and sunsetTime of any daily record from the same response.
// Every daily record is checked, not just the one for the hour's calendar day,
// so a record that matches no day at all is night. See [IsDaytime].
//
// # Points
//
// Each hourly record becomes one point in the "forecast" measurement, tagged
// with source=darksky and the configured location name. Re-fetching overwrites
// the live series because the timestamp and tag set are unchanged.
//
// With history enabled, a copy goes to "forecast_history" with the record's
// epoch seconds added as the forecast_time_tag tag and forecast_time_field
// field. The tag value is the hour itself, so each forecast hour gets its own
// series; re-fetching the same hour lands on the same series and timestamp and
// replaces the earlier history point.
//
// Two plotting helpers ride along with every point: daytime_show and
// nightime_show. Exactly one of them is -10 and the other 0, which lets a
// dashboard draw day and night bands from a single query.
package domain

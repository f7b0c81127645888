package domain

// IsDaytime reports whether hourlyTime lies strictly between the sunrise and
// sunset of any record in daily. Boundaries are exclusive, and an empty or
// non-matching daily set means night.
func IsDaytime(hourlyTime int64, daily []DailyRecord) bool {
	for _, day := range daily {
		if hourlyTime > day.SunriseTime && hourlyTime < day.SunsetTime {
			return true
		}
	}
	return false
}

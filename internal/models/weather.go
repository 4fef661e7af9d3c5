package models

import (
	"encoding/json"
	"time"
)

// MissingValue marks a reading that was not recorded.
const MissingValue = -9999

// Scale converts stored tenths into real units.
const Scale = 0.1

// DateLayout is the storage form of an observation date.
const DateLayout = "2006-01-02"

// Station represents a weather monitoring station
type Station struct {
	ID          int64  `json:"id" db:"id"`
	State       string `json:"state" db:"state"`
	StationCode string `json:"station_code" db:"station_code"`
}

// Reading is one parsed input line. Values are tenths of a unit and may
// equal MissingValue.
type Reading struct {
	Date           time.Time
	MaxTemperature int
	MinTemperature int
	Precipitation  int
}

// Observation is one station's readings for one calendar date.
type Observation struct {
	ID             int64     `json:"id" db:"id"`
	StationID      int64     `json:"station_id" db:"station_id"`
	Date           time.Time `json:"-" db:"date"`
	MaxTemperature int       `json:"max_temperature" db:"max_temperature"`
	MinTemperature int       `json:"min_temperature" db:"min_temperature"`
	Precipitation  int       `json:"precipitation" db:"precipitation"`
}

// NewObservation binds a reading to a station.
func NewObservation(stationID int64, r Reading) *Observation {
	return &Observation{
		StationID:      stationID,
		Date:           r.Date,
		MaxTemperature: r.MaxTemperature,
		MinTemperature: r.MinTemperature,
		Precipitation:  r.Precipitation,
	}
}

// DateString returns the observation date in storage form.
func (o *Observation) DateString() string {
	return o.Date.Format(DateLayout)
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (o Observation) MarshalJSON() ([]byte, error) {
	type plain Observation
	return json.Marshal(struct {
		plain
		Date   string         `json:"date"`
		Scaled scaledReadings `json:"scaled"`
	}{
		plain: plain(o),
		Date:  o.DateString(),
		Scaled: scaledReadings{
			MaxTemperature: scaledPtr(o.MaxTemperature),
			MinTemperature: scaledPtr(o.MinTemperature),
			Precipitation:  scaledPtr(o.Precipitation),
		},
	})
}

type scaledReadings struct {
	MaxTemperature *float64 `json:"max_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
	Precipitation  *float64 `json:"precipitation"`
}

func scaledPtr(v int) *float64 {
	f, ok := ScaledValue(v)
	if !ok {
		return nil
	}
	return &f
}

// YearlyStatistic is a derived aggregate over one station's observations
// within one calendar year. Nil fields had no valid readings.
type YearlyStatistic struct {
	ID                 int64    `json:"id" db:"id"`
	StationID          int64    `json:"station_id" db:"station_id"`
	Year               int      `json:"year" db:"year"`
	AvgMaxTemperature  *float64 `json:"avg_max_temperature" db:"avg_max_temperature"`
	AvgMinTemperature  *float64 `json:"avg_min_temperature" db:"avg_min_temperature"`
	TotalPrecipitation *float64 `json:"total_precipitation" db:"total_precipitation"`
}

// IsMissing reports whether a stored reading is the missing-value sentinel.
func IsMissing(v int) bool {
	return v == MissingValue
}

// ScaledValue converts a stored reading to real units. The second result
// is false for the sentinel.
func ScaledValue(v int) (float64, bool) {
	if IsMissing(v) {
		return 0, false
	}
	return float64(v) * Scale, true
}

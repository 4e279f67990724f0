package domain

import "time"

// Measurement is the result of one monitoring cycle. A nil field means the
// value was not produced for this cycle.
type Measurement struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	CPM       *float64  `json:"cpm,omitempty" bson:"cpm,omitempty"`
	Radiation *float64  `json:"radiation,omitempty" bson:"radiation,omitempty"`
}

// NewMeasurement builds a measurement carrying both values, stamped in UTC.
func NewMeasurement(ts time.Time, cpm, radiation float64) Measurement {
	return Measurement{
		Timestamp: ts.UTC(),
		CPM:       &cpm,
		Radiation: &radiation,
	}
}

package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Sentinel marks land-surface features for days without land-surface data.
const Sentinel = -9999.0

// FeatureColumns is the fixed column order of the exported table.
var FeatureColumns = []string{
	"date",
	"rainfall_mean_mm",
	"rainfall_max_mm",
	"rainfall_std_mm",
	"rainfall_3day_cumulative_mm",
	"surface_runoff_mm",
	"subsurface_runoff_mm",
	"soil_moisture_top10cm_mm",
}

// LandSurface holds the three land-surface features, which are filled as a group.
type LandSurface struct {
	SurfaceRunoff    float64
	SubsurfaceRunoff float64
	SoilMoisture     float64
}

// SentinelLandSurface is the land-surface group for days with no data.
func SentinelLandSurface() LandSurface {
	return LandSurface{SurfaceRunoff: Sentinel, SubsurfaceRunoff: Sentinel, SoilMoisture: Sentinel}
}

// DailyFeatureRecord is one row of the feature table. Date identifies the
// record within a run.
type DailyFeatureRecord struct {
	Date                   time.Time
	RainfallMean           float64
	RainfallMax            float64
	RainfallStd            float64
	Rainfall3DayCumulative float64
	LandSurface
}

// DateKey returns the record date as YYYY-MM-DD.
func (r DailyFeatureRecord) DateKey() string {
	return r.Date.UTC().Format(DateLayout)
}

// LandSurfaceMissing reports whether the land-surface group is the sentinel.
func (r DailyFeatureRecord) LandSurfaceMissing() bool {
	return r.LandSurface == SentinelLandSurface()
}

// Values returns the seven numeric features in column order.
func (r DailyFeatureRecord) Values() []float64 {
	return []float64{
		r.RainfallMean,
		r.RainfallMax,
		r.RainfallStd,
		r.Rainfall3DayCumulative,
		r.SurfaceRunoff,
		r.SubsurfaceRunoff,
		r.SoilMoisture,
	}
}

// Row formats the record in FeatureColumns order. NaN (no valid samples)
// becomes an empty cell.
func (r DailyFeatureRecord) Row() []string {
	row := make([]string, 0, len(FeatureColumns))
	row = append(row, r.DateKey())
	for _, v := range r.Values() {
		row = append(row, FormatFeature(v))
	}
	return row
}

// FormatFeature renders a feature value with the shortest round-trip form.
func FormatFeature(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFeature is the inverse of FormatFeature.
func ParseFeature(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseRow parses a row in FeatureColumns order.
func ParseRow(row []string) (DailyFeatureRecord, error) {
	if len(row) != len(FeatureColumns) {
		return DailyFeatureRecord{}, fmt.Errorf("row has %d columns, want %d", len(row), len(FeatureColumns))
	}
	date, err := ParseDate(row[0])
	if err != nil {
		return DailyFeatureRecord{}, fmt.Errorf("parse date: %w", err)
	}
	vals := make([]float64, len(row)-1)
	for i, cell := range row[1:] {
		v, err := ParseFeature(cell)
		if err != nil {
			return DailyFeatureRecord{}, fmt.Errorf("parse %s: %w", FeatureColumns[i+1], err)
		}
		vals[i] = v
	}
	return DailyFeatureRecord{
		Date:                   date,
		RainfallMean:           vals[0],
		RainfallMax:            vals[1],
		RainfallStd:            vals[2],
		Rainfall3DayCumulative: vals[3],
		LandSurface: LandSurface{
			SurfaceRunoff:    vals[4],
			SubsurfaceRunoff: vals[5],
			SoilMoisture:     vals[6],
		},
	}, nil
}

// recordJSON is the wire form of a record; nil marks NaN since JSON has no NaN.
type recordJSON struct {
	Date                   string   `json:"date"`
	RainfallMean           *float64 `json:"rainfall_mean_mm"`
	RainfallMax            *float64 `json:"rainfall_max_mm"`
	RainfallStd            *float64 `json:"rainfall_std_mm"`
	Rainfall3DayCumulative *float64 `json:"rainfall_3day_cumulative_mm"`
	SurfaceRunoff          *float64 `json:"surface_runoff_mm"`
	SubsurfaceRunoff       *float64 `json:"subsurface_runoff_mm"`
	SoilMoisture           *float64 `json:"soil_moisture_top10cm_mm"`
}

func (r DailyFeatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Date:                   r.DateKey(),
		RainfallMean:           nullable(r.RainfallMean),
		RainfallMax:            nullable(r.RainfallMax),
		RainfallStd:            nullable(r.RainfallStd),
		Rainfall3DayCumulative: nullable(r.Rainfall3DayCumulative),
		SurfaceRunoff:          nullable(r.SurfaceRunoff),
		SubsurfaceRunoff:       nullable(r.SubsurfaceRunoff),
		SoilMoisture:           nullable(r.SoilMoisture),
	})
}

func (r *DailyFeatureRecord) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return fmt.Errorf("parse record date: %w", err)
	}
	*r = DailyFeatureRecord{
		Date:                   date,
		RainfallMean:           fromNullable(w.RainfallMean),
		RainfallMax:            fromNullable(w.RainfallMax),
		RainfallStd:            fromNullable(w.RainfallStd),
		Rainfall3DayCumulative: fromNullable(w.Rainfall3DayCumulative),
		LandSurface: LandSurface{
			SurfaceRunoff:    fromNullable(w.SurfaceRunoff),
			SubsurfaceRunoff: fromNullable(w.SubsurfaceRunoff),
			SoilMoisture:     fromNullable(w.SoilMoisture),
		},
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

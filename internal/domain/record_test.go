package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() DailyFeatureRecord {
	return DailyFeatureRecord{
		Date:                   time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC),
		RainfallMean:           112.5,
		RainfallMax:            240.25,
		RainfallStd:            31.125,
		Rainfall3DayCumulative: 301,
		LandSurface: LandSurface{
			SurfaceRunoff:    18.5,
			SubsurfaceRunoff: 2.75,
			SoilMoisture:     41,
		},
	}
}

func TestDailyFeatureRecord_Row(t *testing.T) {
	row := sampleRecord().Row()
	assert.Equal(t, []string{"2020-10-28", "112.5", "240.25", "31.125", "301", "18.5", "2.75", "41"}, row)
	assert.Len(t, row, len(FeatureColumns))
}

func TestDailyFeatureRecord_RowSentinel(t *testing.T) {
	rec := sampleRecord()
	rec.LandSurface = SentinelLandSurface()

	row := rec.Row()
	assert.Equal(t, []string{"-9999", "-9999", "-9999"}, row[5:])
	assert.True(t, rec.LandSurfaceMissing())
}

func TestDailyFeatureRecord_RowNaN(t *testing.T) {
	rec := sampleRecord()
	rec.RainfallStd = math.NaN()

	row := rec.Row()
	assert.Empty(t, row[3])

	parsed, err := ParseRow(row)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(parsed.RainfallStd))
}

func TestParseRow(t *testing.T) {
	rec := sampleRecord()
	parsed, err := ParseRow(rec.Row())
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)

	_, err = ParseRow([]string{"2020-10-28", "1"})
	assert.Error(t, err)

	row := rec.Row()
	row[2] = "lots"
	_, err = ParseRow(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rainfall_max_mm")
}

func TestDailyFeatureRecord_JSON(t *testing.T) {
	t.Run("field names", func(t *testing.T) {
		data, err := json.Marshal(sampleRecord())
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, "2020-10-28", m["date"])
		assert.InDelta(t, 301.0, m["rainfall_3day_cumulative_mm"], 0)
		assert.InDelta(t, 41.0, m["soil_moisture_top10cm_mm"], 0)
	})

	t.Run("NaN is null", func(t *testing.T) {
		rec := sampleRecord()
		rec.RainfallMean = math.NaN()
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"rainfall_mean_mm":null`)

		var back DailyFeatureRecord
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, math.IsNaN(back.RainfallMean))
		assert.InDelta(t, rec.RainfallMax, back.RainfallMax, 0)
	})

	t.Run("bad date", func(t *testing.T) {
		var rec DailyFeatureRecord
		assert.Error(t, json.Unmarshal([]byte(`{"date":"yesterday"}`), &rec))
	})
}

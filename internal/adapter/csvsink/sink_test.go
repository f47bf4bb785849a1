package csvsink

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2020, time.October, n, 0, 0, 0, 0, time.UTC)
}

func testRecords() []domain.DailyFeatureRecord {
	return []domain.DailyFeatureRecord{
		{
			Date: day(28), RainfallMean: 120.5, RainfallMax: 310, RainfallStd: 42.25, Rainfall3DayCumulative: 402.75,
			LandSurface: domain.LandSurface{SurfaceRunoff: 18.5, SubsurfaceRunoff: 2.125, SoilMoisture: 41},
		},
		{
			Date: day(27), RainfallMean: 0.1, RainfallMax: 0.3, RainfallStd: math.NaN(), Rainfall3DayCumulative: 0.1,
			LandSurface: domain.SentinelLandSurface(),
		},
	}
}

func TestEncode_SortedWithFixedColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testRecords()))

	want := strings.Join([]string{
		"date,rainfall_mean_mm,rainfall_max_mm,rainfall_std_mm,rainfall_3day_cumulative_mm,surface_runoff_mm,subsurface_runoff_mm,soil_moisture_top10cm_mm",
		"2020-10-27,0.1,0.3,,0.1,-9999,-9999,-9999",
		"2020-10-28,120.5,310,42.25,402.75,18.5,2.125,41",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestRead_InvertsEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testRecords()))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(27), got[0].Date)
	assert.True(t, math.IsNaN(got[0].RainfallStd))
	assert.True(t, got[0].LandSurfaceMissing())
	assert.Equal(t, testRecords()[0].Row(), got[1].Row())
}

func TestRead_RejectsForeignHeader(t *testing.T) {
	_, err := Read(strings.NewReader("a,b,c,d,e,f,g,h\n"))
	assert.Error(t, err)
}

func TestSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features.csv")
	s := New(path)

	require.NoError(t, s.Write(context.Background(), testRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "date,rainfall_mean_mm"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestSink_FailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.csv")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(path).Write(ctx, testRecords())

	var exportErr *domain.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Contains(t, exportErr.Sink, "csv")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestSink_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := New(filepath.Join(blocker, "features.csv")).Write(context.Background(), testRecords())
	var exportErr *domain.ExportError
	assert.ErrorAs(t, err, &exportErr)
}

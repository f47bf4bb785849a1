// Command validate checks an exported daily feature table for integrity:
// date ordering, land surface sentinel grouping, precipitation statistic
// bounds, and consistency of the 3-day cumulative column with the daily means.
//
// Usage:
//
//	go run ./cmd/validate -csv QuangNgai_Daily_Flood_Features.csv
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/flood-features-etl/internal/adapter/csvsink"
	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	csvPath := flag.String("csv", "", "path to the exported feature table")
	tolerance := flag.Float64("tolerance", 1e-6, "relative tolerance for the cumulative consistency check")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*csvPath, *tolerance); code != 0 {
		os.Exit(code)
	}
}

func run(path string, tolerance float64) int {
	fmt.Println("=== Flood Feature Table Validation ===")
	fmt.Println()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open table: %v\n", err)
		return 1
	}
	defer f.Close()

	records, err := csvsink.Read(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read table: %v\n", err)
		return 1
	}
	fmt.Printf("Loaded %d rows from %s\n\n", len(records), path)

	phases := validate(records, tolerance)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("[%s] %s\n", status, p.name)
		for _, e := range p.errors {
			fmt.Printf("       %s\n", e)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("RESULT: FAILED")
		return 1
	}
	fmt.Println("RESULT: ALL PASSED")
	return 0
}

func validate(records []domain.DailyFeatureRecord, tolerance float64) []*phase {
	return []*phase{
		validateDates(records),
		validateSentinelGrouping(records),
		validatePrecipitationBounds(records),
		validateCumulative(records, tolerance),
	}
}

func validateDates(records []domain.DailyFeatureRecord) *phase {
	p := &phase{name: "Dates unique and ascending"}
	for i, rec := range records {
		if !rec.Date.Equal(domain.Day(rec.Date)) {
			p.errorf("row %d: date %s is not midnight UTC", i+1, rec.Date)
		}
		if i > 0 && !rec.Date.After(records[i-1].Date) {
			p.errorf("row %d: %s does not follow %s", i+1, rec.DateKey(), records[i-1].DateKey())
		}
	}
	return p
}

func validateSentinelGrouping(records []domain.DailyFeatureRecord) *phase {
	p := &phase{name: "Land surface sentinel grouping"}
	for _, rec := range records {
		ls := rec.LandSurface
		sentinels := 0
		for _, v := range []float64{ls.SurfaceRunoff, ls.SubsurfaceRunoff, ls.SoilMoisture} {
			if v == domain.Sentinel {
				sentinels++
			}
		}
		if sentinels != 0 && sentinels != 3 {
			p.errorf("%s: %d of 3 land surface columns are sentinel", rec.DateKey(), sentinels)
			continue
		}
		if sentinels == 0 && (ls.SurfaceRunoff < 0 || ls.SubsurfaceRunoff < 0) {
			p.errorf("%s: negative runoff", rec.DateKey())
		}
		if rec.RainfallMean == domain.Sentinel || rec.Rainfall3DayCumulative == domain.Sentinel {
			p.errorf("%s: sentinel in a precipitation column", rec.DateKey())
		}
	}
	return p
}

func validatePrecipitationBounds(records []domain.DailyFeatureRecord) *phase {
	p := &phase{name: "Precipitation statistic bounds"}
	for _, rec := range records {
		if math.IsNaN(rec.RainfallMean) {
			continue
		}
		if rec.RainfallMean < 0 {
			p.errorf("%s: negative mean %.4f", rec.DateKey(), rec.RainfallMean)
		}
		if rec.RainfallMax < rec.RainfallMean {
			p.errorf("%s: max %.4f below mean %.4f", rec.DateKey(), rec.RainfallMax, rec.RainfallMean)
		}
		if rec.RainfallStd < 0 {
			p.errorf("%s: negative std %.4f", rec.DateKey(), rec.RainfallStd)
		}
		if rec.Rainfall3DayCumulative < rec.RainfallMean*(1-1e-9) {
			p.errorf("%s: cumulative %.4f below daily mean %.4f", rec.DateKey(), rec.Rainfall3DayCumulative, rec.RainfallMean)
		}
	}
	return p
}

// validateCumulative compares the cumulative column with the sum of the
// three daily means, for dates whose two predecessors are also present.
func validateCumulative(records []domain.DailyFeatureRecord, tolerance float64) *phase {
	p := &phase{name: "3-day cumulative consistency"}
	means := make(map[string]float64, len(records))
	for _, rec := range records {
		means[rec.DateKey()] = rec.RainfallMean
	}
	checked := 0
	for _, rec := range records {
		sum := rec.RainfallMean
		complete := true
		for back := 1; back <= 2; back++ {
			m, ok := means[rec.Date.AddDate(0, 0, -back).Format(domain.DateLayout)]
			if !ok {
				complete = false
				break
			}
			sum += m
		}
		if !complete || math.IsNaN(sum) {
			continue
		}
		checked++
		if diff := math.Abs(sum - rec.Rainfall3DayCumulative); diff > tolerance*math.Max(1, math.Abs(sum)) {
			p.errorf("%s: cumulative %.6f, sum of daily means %.6f", rec.DateKey(), rec.Rainfall3DayCumulative, sum)
		}
	}
	p.name = fmt.Sprintf("%s (%d dates checked)", p.name, checked)
	return p
}

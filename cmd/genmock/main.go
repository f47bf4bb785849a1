// Command genmock writes a synthetic dataset the ETL can run against without
// network access: a boundary GeoJSON file, daily precipitation frames, and
// 3-hourly land surface frames with periodic gaps.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data \
//	  -start 2020-09-01 -days 30 \
//	  -gap-every 7 -gldas-names
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/adapter/boundary"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/rasterfile"
	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb"
)

// GLDAS band names, renamed by LAND_SURFACE_BAND_MAP at run time.
var gldasNames = map[string]string{
	domain.BandSurfaceRunoff:       "Qs_acc",
	domain.BandSubsurfaceRunoff:    "Qsb_acc",
	domain.BandSoilMoistureTop10cm: "SoilMoi0_10cm_inst",
}

type options struct {
	outDir     string
	region     string
	property   string
	start      time.Time
	days       int
	gapEvery   int
	gldasNames bool
	seed       uint64
}

type summary struct {
	precipitationFrames int
	landSurfaceFrames   int
	gapDays             int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data", "output directory")
	region := flag.String("region", "Quang Ngai", "region name written to the boundary file")
	property := flag.String("property", boundary.DefaultNameProperty, "boundary name property")
	start := flag.String("start", "2020-09-01", "first day (YYYY-MM-DD)")
	days := flag.Int("days", 30, "number of days")
	gapEvery := flag.Int("gap-every", 7, "omit land surface data every n-th day (0 disables)")
	gldas := flag.Bool("gldas-names", false, "write land surface bands under GLDAS names")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	startDay, err := domain.ParseDate(*start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *days <= 0 {
		return fmt.Errorf("-days must be positive")
	}

	s, err := generate(options{
		outDir:     *outDir,
		region:     *region,
		property:   *property,
		start:      startDay,
		days:       *days,
		gapEvery:   *gapEvery,
		gldasNames: *gldas,
		seed:       *seed,
	})
	if err != nil {
		return err
	}
	log.Printf("precipitation frames: %d", s.precipitationFrames)
	log.Printf("land surface frames: %d (%d gap days)", s.landSurfaceFrames, s.gapDays)
	if *gldas {
		log.Printf("set LAND_SURFACE_BAND_MAP=Qs_acc=%s,Qsb_acc=%s,SoilMoi0_10cm_inst=%s",
			domain.BandSurfaceRunoff, domain.BandSubsurfaceRunoff, domain.BandSoilMoistureTop10cm)
	}
	return nil
}

// Extent of the synthetic scene in projected metres.
const (
	sceneWidth  = 100000.0
	sceneHeight = 80000.0
	fineCell    = 5000.0
	coarseCell  = 25000.0
)

func generate(o options) (summary, error) {
	var s summary
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	region, err := domain.NewRegion(o.region, orb.Polygon{{
		{10000, 10000}, {90000, 10000}, {90000, 70000}, {50000, 75000}, {10000, 70000}, {10000, 10000},
	}})
	if err != nil {
		return s, err
	}
	if err := boundary.WriteFile(filepath.Join(o.outDir, "boundaries.geojson"), o.property, region); err != nil {
		return s, fmt.Errorf("write boundaries: %w", err)
	}

	precipDir := filepath.Join(o.outDir, "precipitation")
	landDir := filepath.Join(o.outDir, "land_surface")

	for d := range o.days {
		day := o.start.AddDate(0, 0, d)

		// Storm days are rare and heavy, most days are light.
		intensity := rng.ExpFloat64() * 4
		if rng.Float64() < 0.1 {
			intensity += 40 + rng.Float64()*80
		}
		precip, err := field(rng, fineCell, intensity, 0.6)
		if err != nil {
			return s, err
		}
		if err := rasterfile.WriteFrame(precipDir, domain.RasterFrame{
			Time:  day,
			Bands: map[string]domain.Grid{domain.BandPrecipitation: precip},
		}); err != nil {
			return s, fmt.Errorf("write precipitation %s: %w", day.Format(domain.DateLayout), err)
		}
		s.precipitationFrames++

		if o.gapEvery > 0 && (d+1)%o.gapEvery == 0 {
			s.gapDays++
			continue
		}
		for step := range 8 {
			frame, err := landFrame(rng, day.Add(time.Duration(step)*3*time.Hour), intensity, o.gldasNames)
			if err != nil {
				return s, err
			}
			if err := rasterfile.WriteFrame(landDir, frame); err != nil {
				return s, fmt.Errorf("write land surface %s: %w", frame.Time.Format(time.RFC3339), err)
			}
			s.landSurfaceFrames++
		}
	}
	return s, nil
}

func landFrame(rng *rand.Rand, t time.Time, intensity float64, gldas bool) (domain.RasterFrame, error) {
	surface, err := field(rng, coarseCell, intensity*0.02, 0.3)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	subsurface, err := field(rng, coarseCell, intensity*0.01+0.05, 0.3)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	soil, err := field(rng, coarseCell, 18+math.Min(intensity, 30)*0.4, 0.1)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	bands := map[string]domain.Grid{
		domain.BandSurfaceRunoff:       surface,
		domain.BandSubsurfaceRunoff:    subsurface,
		domain.BandSoilMoistureTop10cm: soil,
	}
	if gldas {
		renamed := make(map[string]domain.Grid, len(bands))
		for name, g := range bands {
			renamed[gldasNames[name]] = g
		}
		bands = renamed
	}
	return domain.RasterFrame{Time: t, Bands: bands}, nil
}

// field draws a non-negative grid around mean with relative jitter.
func field(rng *rand.Rand, cell, mean, jitter float64) (domain.Grid, error) {
	cols := int(sceneWidth / cell)
	rows := int(sceneHeight / cell)
	values := make([]float64, cols*rows)
	for i := range values {
		values[i] = math.Max(0, mean*(1+jitter*rng.NormFloat64()))
	}
	return domain.NewGrid(0, 0, cell, cols, rows, values)
}

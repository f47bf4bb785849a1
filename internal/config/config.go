package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Series and checkpoint backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

const dateLayout = "2006-01-02"

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Region lookup.
	RegionName         string
	RegionSource       string
	RegionNameProperty string
	RegionTimeout      time.Duration

	// Date domain, half-open [Start, End).
	Start time.Time
	End   time.Time

	// Reduction parameters.
	PrecipitationResolution float64
	LandSurfaceResolution   float64
	PixelCap                int64

	// Raster series storage.
	SeriesBackend           string
	PrecipitationPath       string
	LandSurfacePath         string
	DatabaseURL             string
	PrecipitationCollection string
	LandSurfaceCollection   string
	LandSurfaceBandMap      map[string]string

	// Execution.
	Concurrency    int
	QueryRateLimit float64
	MaxAttempts    int
	RetryBackoff   time.Duration

	CheckpointBackend string
	CheckpointPath    string

	// Output.
	OutputPath     string
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// SeriesIdentity names the raster sources and band renaming of a run, so a
// checkpoint written against other inputs is not reused.
func (c *Config) SeriesIdentity() string {
	var precip, land string
	switch c.SeriesBackend {
	case BackendPostgres:
		precip, land = c.PrecipitationCollection, c.LandSurfaceCollection
	default:
		precip, land = c.PrecipitationPath, c.LandSurfacePath
	}
	renames := make([]string, 0, len(c.LandSurfaceBandMap))
	for _, from := range slices.Sorted(maps.Keys(c.LandSurfaceBandMap)) {
		renames = append(renames, from+"="+c.LandSurfaceBandMap[from])
	}
	return fmt.Sprintf("%s;precipitation=%s;land_surface=%s;bands=%s",
		c.SeriesBackend, precip, land, strings.Join(renames, ","))
}

// KafkaEnabled reports whether records are also published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	regionTimeout, err := parsePositiveDuration("REGION_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	retryBackoff, err := parseDuration("RETRY_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}

	start, err := parseDate("START_DATE", "2000-01-01")
	if err != nil {
		return nil, err
	}
	end, err := parseDate("END_DATE", "2025-01-01")
	if err != nil {
		return nil, err
	}

	precipRes, err := parsePositiveFloat("PRECIPITATION_RESOLUTION", "5000")
	if err != nil {
		return nil, err
	}
	landRes, err := parsePositiveFloat("LAND_SURFACE_RESOLUTION", "25000")
	if err != nil {
		return nil, err
	}
	pixelCap, err := parsePixelCap()
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("CONCURRENCY", "8")
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("MAX_ATTEMPTS", "3")
	if err != nil {
		return nil, err
	}
	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("QUERY_RATE_LIMIT", "0"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid QUERY_RATE_LIMIT")
	}

	bandMap, err := ParseBandMap(os.Getenv("LAND_SURFACE_BAND_MAP"))
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		RegionName:         sharedcfg.EnvOrDefault("REGION_NAME", "Quang Ngai"),
		RegionSource:       sharedcfg.EnvOrDefault("REGION_SOURCE", "data/boundaries.geojson"),
		RegionNameProperty: sharedcfg.EnvOrDefault("REGION_NAME_PROPERTY", "ADM1_NAME"),
		RegionTimeout:      regionTimeout,

		Start: start,
		End:   end,

		PrecipitationResolution: precipRes,
		LandSurfaceResolution:   landRes,
		PixelCap:                pixelCap,

		SeriesBackend:           strings.ToLower(sharedcfg.EnvOrDefault("SERIES_BACKEND", BackendFile)),
		PrecipitationPath:       sharedcfg.EnvOrDefault("PRECIPITATION_PATH", "data/precipitation"),
		LandSurfacePath:         sharedcfg.EnvOrDefault("LAND_SURFACE_PATH", "data/land_surface"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		PrecipitationCollection: sharedcfg.EnvOrDefault("PRECIPITATION_COLLECTION", "UCSB-CHG/CHIRPS/DAILY"),
		LandSurfaceCollection:   sharedcfg.EnvOrDefault("LAND_SURFACE_COLLECTION", "NASA/GLDAS/V021/NOAH/G025/T3H"),
		LandSurfaceBandMap:      bandMap,

		Concurrency:    concurrency,
		QueryRateLimit: rateLimit,
		MaxAttempts:    maxAttempts,
		RetryBackoff:   retryBackoff,

		CheckpointBackend: strings.ToLower(sharedcfg.EnvOrDefault("CHECKPOINT_BACKEND", BackendFile)),
		CheckpointPath:    sharedcfg.EnvOrDefault("CHECKPOINT_PATH", "data/checkpoint.jsonl"),

		OutputPath:     sharedcfg.EnvOrDefault("OUTPUT_PATH", "QuangNgai_Daily_Flood_Features.csv"),
		KafkaBrokers:   brokers,
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "flood-features-daily"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RegionName == "" {
		return errors.New("REGION_NAME is required")
	}
	if !c.End.After(c.Start) {
		return errors.New("END_DATE must be after START_DATE")
	}
	switch c.SeriesBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("SERIES_BACKEND is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("invalid SERIES_BACKEND %q", c.SeriesBackend)
	}
	switch c.CheckpointBackend {
	case BackendFile, BackendNone:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("CHECKPOINT_BACKEND is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("invalid CHECKPOINT_BACKEND %q", c.CheckpointBackend)
	}
	if c.OutputPath == "" {
		return errors.New("OUTPUT_PATH is required")
	}
	if c.KafkaEnabled() && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// ParseBandMap parses "from=to,from=to" into a rename table.
func ParseBandMap(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(pair), "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid LAND_SURFACE_BAND_MAP entry %q", pair)
		}
		out[from] = to
	}
	return out, nil
}

func parseDate(key, def string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, sharedcfg.EnvOrDefault(key, def), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parsePixelCap accepts integer or float notation, e.g. "1e13".
func parsePixelCap() (int64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("PIXEL_CAP", "1e13"), 64)
	if err != nil || f < 1 || f > float64(1<<62) {
		return 0, errors.New("invalid PIXEL_CAP")
	}
	return int64(f), nil
}
